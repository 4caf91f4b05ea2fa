package devicestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database backing the store.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string
	// DSN is a file path or sqlite URI for sqlite, a libpq connection string
	// or URL for postgres.
	DSN string
	// AutoMigrate creates or updates the schema on open.
	AutoMigrate bool
}

// Open connects to the configured database.
func Open(cfg Config, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)

		if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, err
		}
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Migrate creates or updates every table used by the store.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GormLogger routes gorm logs to slog. Statements are logged at debug level
// with placeholders only; bound values carry passcodes and never reach the log.
type GormLogger struct {
	log *slog.Logger
}

func NewGormLogger(log *slog.Logger) *GormLogger {
	return &GormLogger{log: log.With("component", "gorm")}
}

func (l *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

// ParamsFilter drops bound values from logged statements.
func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.log.WarnContext(ctx, "query failed", "sql", sql, "rows", rows, "took", time.Since(begin), "err", err)
		return
	}
	l.log.DebugContext(ctx, "query", "sql", sql, "rows", rows, "took", time.Since(begin))
}

// OpenInMemory returns a migrated store backed by a private in-memory
// sqlite database. Used for development and tests.
func OpenInMemory(log *slog.Logger) (*GormStore, error) {
	db, err := Open(Config{
		Driver:      DriverSQLite,
		DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		AutoMigrate: true,
	}, log)
	if err != nil {
		return nil, err
	}
	return NewGormStore(db), nil
}
