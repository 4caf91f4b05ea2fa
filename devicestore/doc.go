// Package devicestore persists factory records, activation records,
// activation readiness and VIN associations with gorm.
//
// SQLite and PostgreSQL are supported. The store enforces at most one active
// activation record per factory record, and per activation id for records
// created through the pre-shared-key path. Each rule is a unique index over a
// nullable column that is cleared when a record is disabled. A losing
// concurrent insert is reported as interfaces.ErrDuplicateActivation.
//
// Statements are logged at debug level without their bound values.
package devicestore
