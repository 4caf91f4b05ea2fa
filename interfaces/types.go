package interfaces

import (
	"fmt"
	"strings"
	"time"
)

// DeviceState is the lifecycle state of a factory record.
type DeviceState string

const (
	// StateProvisioned is the factory default.
	StateProvisioned DeviceState = "PROVISIONED"
	// StateReadyToActivate is set once the user association has completed.
	StateReadyToActivate DeviceState = "READY_TO_ACTIVATE"
	// StateProvisionedAlive marks a device that connected without a completed association.
	StateProvisionedAlive DeviceState = "PROVISIONED_ALIVE"
	StateActive           DeviceState = "ACTIVE"
	StateDeactivated      DeviceState = "DEACTIVATED"
	StateStolen           DeviceState = "STOLEN"
	StateFaulty           DeviceState = "FAULTY"
)

var allDeviceStates = []DeviceState{
	StateProvisioned,
	StateReadyToActivate,
	StateProvisionedAlive,
	StateActive,
	StateDeactivated,
	StateStolen,
	StateFaulty,
}

// ParseDeviceState converts a string into a known DeviceState.
func ParseDeviceState(s string) (DeviceState, error) {
	for _, state := range allDeviceStates {
		if strings.EqualFold(string(state), s) {
			return state, nil
		}
	}
	return "", fmt.Errorf("%w: unknown device state %q", ErrValidation, s)
}

// String returns the state name.
func (s DeviceState) String() string {
	return string(s)
}

// FactoryRecord is the factory-provisioned inventory entry for a physical device.
type FactoryRecord struct {
	ID           uint64
	SerialNumber string
	IMEI         string
	BSSID        string
	VIN          string
	HWVersion    string
	SWVersion    string
	DeviceType   string
	ICCID        string
	MSISDN       string
	IMSI         string
	SSID         string
	Stolen       bool
	Faulty       bool
	State        DeviceState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Blocked reports whether the record is flagged stolen or faulty.
func (r *FactoryRecord) Blocked() bool {
	return r.Stolen || r.Faulty || r.State == StateStolen || r.State == StateFaulty
}

// FactoryLookup identifies a factory record. At least one field must be set.
type FactoryLookup struct {
	SerialNumber string
	IMEI         string
	BSSID        string
}

// Empty reports whether no identifier is present.
func (l FactoryLookup) Empty() bool {
	return l.SerialNumber == "" && l.IMEI == "" && l.BSSID == ""
}

// String renders the lookup for logs.
func (l FactoryLookup) String() string {
	parts := make([]string, 0, 3)
	if l.SerialNumber != "" {
		parts = append(parts, "serial="+l.SerialNumber)
	}
	if l.IMEI != "" {
		parts = append(parts, "imei="+l.IMEI)
	}
	if l.BSSID != "" {
		parts = append(parts, "bssid="+l.BSSID)
	}
	return strings.Join(parts, ",")
}

// ActivationRecord is an issued device identity and its current passcode.
// Either FactoryRecordID or ActivationID is set, depending on which
// activation path created it.
type ActivationRecord struct {
	ID              uint64
	HarmanID        string
	Passcode        string
	FactoryRecordID *uint64
	ActivationID    *string
	SerialNumber    string
	DeviceType      string
	QualifierSeed   int64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActivationReadiness authorizes a device to activate once the user has
// linked a VIN to it.
type ActivationReadiness struct {
	ID                 uint64
	SerialNumber       string
	UserID             string
	AssociationPending bool
	Enabled            bool
	DeactivatedBy      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransactionStatus is the status of the provisioning transaction behind an association.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "Pending"
	TransactionCompleted TransactionStatus = "Completed"
	TransactionFailed    TransactionStatus = "Failed"
)

// Association links a VIN to a device serial number through a provisioning transaction.
type Association struct {
	ID                uint64
	SerialNumber      string
	VIN               string
	TransactionID     string
	TransactionStatus TransactionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ActivationOutcome classifies a non-error ActivationResult.
type ActivationOutcome int

const (
	// OutcomeActivated means a fresh identity was issued.
	OutcomeActivated ActivationOutcome = iota
	// OutcomeReactivated means the passcode of an existing identity was rotated.
	OutcomeReactivated
	// OutcomeProvisionedAlive means the device connected without a completed association.
	OutcomeProvisionedAlive
)

// String returns the outcome name used in logs and metrics.
func (o ActivationOutcome) String() string {
	switch o {
	case OutcomeActivated:
		return "activated"
	case OutcomeReactivated:
		return "reactivated"
	case OutcomeProvisionedAlive:
		return "provisioned_alive"
	default:
		return "unknown"
	}
}

// ActivationResult is the output of an activation decision. DeviceID and
// Passcode are set only for OutcomeActivated and OutcomeReactivated.
type ActivationResult struct {
	Outcome     ActivationOutcome
	DeviceID    string
	Passcode    string
	TypeChanged bool
}

// ProvisionedAlive reports whether the result is the provisioned-alive marker.
func (r *ActivationResult) ProvisionedAlive() bool {
	return r.Outcome == OutcomeProvisionedAlive
}

// QualifierSeed is the non-negative value produced by a successful qualifier
// verification. Credential issuance only accepts a seed.
type QualifierSeed int64
