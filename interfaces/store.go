package interfaces

import "context"

// DeviceStateStore abstracts the inventory, activation, readiness and
// association records. Implementations must enforce at most one active
// activation record per factory record and per pre-shared-key activation id,
// and report violations as ErrDuplicateActivation.
type DeviceStateStore interface {
	// FindFactoryRecord locates a record by serial number, IMEI or BSSID, in
	// that order of preference. Returns ErrFactoryRecordNotFound.
	FindFactoryRecord(ctx context.Context, lookup FactoryLookup) (*FactoryRecord, error)

	// CreateFactoryRecord inserts a new inventory entry and assigns its ID.
	CreateFactoryRecord(ctx context.Context, record *FactoryRecord) error

	// UpdateFactoryState sets the lifecycle state of a factory record.
	UpdateFactoryState(ctx context.Context, id uint64, state DeviceState) error

	// UpdateDeviceType replaces the stored device type of a factory record.
	UpdateDeviceType(ctx context.Context, id uint64, deviceType string) error

	// InsertActivation persists a new activation record and assigns its ID.
	InsertActivation(ctx context.Context, record *ActivationRecord) error

	// SetHarmanID assigns the device identity of an activation record.
	SetHarmanID(ctx context.Context, id uint64, harmanID string) error

	// FindActiveActivation returns the active record for a factory record.
	// Returns ErrActivationNotFound.
	FindActiveActivation(ctx context.Context, factoryRecordID uint64) (*ActivationRecord, error)

	// FindActivationsByActivationID returns all active records created through
	// the pre-shared-key path for activationID.
	FindActivationsByActivationID(ctx context.Context, activationID string) ([]ActivationRecord, error)

	// UpdatePasscode replaces the passcode of an activation record.
	UpdatePasscode(ctx context.Context, id uint64, passcode string) error

	// UpdateActivationDeviceType replaces the device type registered for an
	// activation record.
	UpdateActivationDeviceType(ctx context.Context, id uint64, deviceType string) error

	// DisableActivation marks an activation record inactive.
	DisableActivation(ctx context.Context, id uint64) error

	// FindReadiness returns the latest enabled readiness record for a serial number.
	// Returns ErrActivationNotFound when none exists.
	FindReadiness(ctx context.Context, serialNumber string) (*ActivationReadiness, error)

	// SaveReadiness inserts a readiness record.
	SaveReadiness(ctx context.Context, readiness *ActivationReadiness) error

	// DisableReadiness disables every enabled readiness record for a serial
	// number and returns how many were affected.
	DisableReadiness(ctx context.Context, serialNumber string, actor string) (int64, error)

	// FindAssociation returns the association for a serial number.
	// Returns ErrAssociationNotFound.
	FindAssociation(ctx context.Context, serialNumber string) (*Association, error)

	// SaveAssociation inserts or replaces the association for a serial number.
	SaveAssociation(ctx context.Context, association *Association) error

	// UpdateAssociationTransaction sets the transaction status of an association.
	UpdateAssociationTransaction(ctx context.Context, serialNumber string, status TransactionStatus) error

	// WithTx runs fn inside a single database transaction. The store passed to
	// fn is bound to that transaction; returning an error rolls it back.
	WithTx(ctx context.Context, fn func(tx DeviceStateStore) error) error
}
