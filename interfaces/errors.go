package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers must react to them.
type ErrorKind int

const (
	KindTechnical ErrorKind = iota
	KindValidationFailed
	KindResourceNotFound
	KindPreconditionFailed
	KindDuplicateActivation
	KindDataIntegrity
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindResourceNotFound:
		return "resource_not_found"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindDuplicateActivation:
		return "duplicate_activation"
	case KindDataIntegrity:
		return "data_integrity"
	default:
		return "technical"
	}
}

var (
	// ErrValidation is returned for malformed or missing request fields.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAAD is returned when the aad flag is neither "yes" nor "no".
	ErrInvalidAAD = fmt.Errorf("%w: aad must be yes or no", ErrValidation)

	// ErrDeviceTypeNotAllowed is returned when device validation rejects the requested type.
	ErrDeviceTypeNotAllowed = fmt.Errorf("%w: device type not allowed", ErrValidation)

	// ErrFactoryRecordNotFound is returned when no inventory entry matches the identifiers.
	ErrFactoryRecordNotFound = errors.New("factory record not found")

	// ErrActivationNotFound is returned when no activation record exists.
	ErrActivationNotFound = errors.New("activation record not found")

	// ErrAssociationNotFound is returned when no VIN association exists for the serial number.
	ErrAssociationNotFound = errors.New("association not found")

	// ErrAssociationIncomplete is returned when the association transaction is not Completed.
	ErrAssociationIncomplete = errors.New("association transaction not completed")

	// ErrQualifierMismatch is returned when the submitted qualifier does not verify.
	ErrQualifierMismatch = errors.New("qualifier mismatch")

	// ErrPreSharedKeyMismatch is returned when the decrypted pre-shared keys differ or are blank.
	ErrPreSharedKeyMismatch = errors.New("pre-shared key mismatch")

	// ErrSecretMissing is returned when a shared secret is absent from the secret store.
	ErrSecretMissing = errors.New("shared secret missing")

	// ErrInvalidDeviceState is returned when the device lifecycle forbids activation.
	ErrInvalidDeviceState = errors.New("device in invalid state to activate")

	// ErrDuplicateActivation is returned when a concurrent first activation lost the race.
	ErrDuplicateActivation = errors.New("duplicate activation")

	// ErrMultipleActivations is returned when more than one active record exists for an activation id.
	ErrMultipleActivations = errors.New("multiple active records for activation id")

	// ErrInconsistentState is returned when a factory record is ACTIVE but has no active activation record.
	ErrInconsistentState = errors.New("device state inconsistent with activation records")

	// ErrRegistrationFailed is returned when the credential-registration collaborator rejects a call.
	ErrRegistrationFailed = errors.New("credential registration failed")
)

// PartialFailureError reports that local state was committed but a later
// external call failed. The local state is not rolled back.
type PartialFailureError struct {
	DeviceID string
	Step     string
	Err      error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure after local commit for %s at %s: %v", e.DeviceID, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unknown errors are KindTechnical.
func KindOf(err error) ErrorKind {
	var partial *PartialFailureError
	switch {
	case err == nil:
		return KindTechnical
	case errors.As(err, &partial):
		return KindTechnical
	case errors.Is(err, ErrValidation):
		return KindValidationFailed
	case errors.Is(err, ErrFactoryRecordNotFound), errors.Is(err, ErrActivationNotFound):
		return KindResourceNotFound
	case errors.Is(err, ErrAssociationNotFound),
		errors.Is(err, ErrAssociationIncomplete),
		errors.Is(err, ErrQualifierMismatch),
		errors.Is(err, ErrPreSharedKeyMismatch),
		errors.Is(err, ErrSecretMissing),
		errors.Is(err, ErrInvalidDeviceState):
		return KindPreconditionFailed
	case errors.Is(err, ErrDuplicateActivation):
		return KindDuplicateActivation
	case errors.Is(err, ErrMultipleActivations), errors.Is(err, ErrInconsistentState):
		return KindDataIntegrity
	default:
		return KindTechnical
	}
}
