package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

type messagingLogger struct {
	log *slog.Logger
}

// NewLoggerAdapter routes watermill logs to slog.
func NewLoggerAdapter(log *slog.Logger) watermill.LoggerAdapter {
	return &messagingLogger{log: log}
}

func attrs(fields watermill.LogFields) []any {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (l *messagingLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(msg, append(attrs(fields), "err", err)...)
}

func (l *messagingLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, attrs(fields)...)
}

func (l *messagingLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, attrs(fields)...)
}

func (l *messagingLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, attrs(fields)...)
}

func (l *messagingLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &messagingLogger{log: l.log.With(attrs(fields)...)}
}
