package activation

import (
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// CloudEvent types produced by the Dispatcher.
const (
	TypeDeviceActivated        = "com.harman.device.activated"
	TypeDeviceProvisionedAlive = "com.harman.device.provisioned_alive"
	TypeActivationRejected     = "com.harman.device.activation_rejected"
	TypeDeviceDeactivated      = "com.harman.device.deactivated"
)

// Event is a domain event returned by the Orchestrator and delivered by the
// Dispatcher. Producing an event has no side effects.
type Event interface {
	EventType() string
}

// DeviceSnapshot is the factory record view carried in published events.
type DeviceSnapshot struct {
	SerialNumber string `json:"serialNumber"`
	IMEI         string `json:"imei,omitempty"`
	BSSID        string `json:"bssid,omitempty"`
	VIN          string `json:"vin,omitempty"`
	DeviceType   string `json:"deviceType,omitempty"`
	HWVersion    string `json:"hwVersion,omitempty"`
	SWVersion    string `json:"swVersion,omitempty"`
	State        string `json:"state"`
	Stolen       bool   `json:"stolen"`
	Faulty       bool   `json:"faulty"`
}

func snapshotOf(r *interfaces.FactoryRecord) DeviceSnapshot {
	return DeviceSnapshot{
		SerialNumber: r.SerialNumber,
		IMEI:         r.IMEI,
		BSSID:        r.BSSID,
		VIN:          r.VIN,
		DeviceType:   r.DeviceType,
		HWVersion:    r.HWVersion,
		SWVersion:    r.SWVersion,
		State:        r.State.String(),
		Stolen:       r.Stolen,
		Faulty:       r.Faulty,
	}
}

// DeviceActivated is emitted on first activation and on reactivation.
// Only a first activation triggers the user notification.
type DeviceActivated struct {
	DeviceID        string    `json:"deviceId"`
	SerialNumber    string    `json:"serialNumber,omitempty"`
	ActivationID    string    `json:"activationId,omitempty"`
	DeviceType      string    `json:"deviceType,omitempty"`
	UserID          string    `json:"userId,omitempty"`
	FirstActivation bool      `json:"firstActivation"`
	TypeChanged     bool      `json:"typeChanged"`
	At              time.Time `json:"at"`
}

func (DeviceActivated) EventType() string { return TypeDeviceActivated }

type DeviceProvisionedAlive struct {
	SerialNumber string    `json:"serialNumber"`
	DeviceType   string    `json:"deviceType,omitempty"`
	At           time.Time `json:"at"`
}

func (DeviceProvisionedAlive) EventType() string { return TypeDeviceProvisionedAlive }

// ActivationRejected is emitted for invalid-state rejections of device types
// listed in Config.InvalidStateEventTypes.
type ActivationRejected struct {
	EventID  string         `json:"eventId"`
	Topic    string         `json:"-"`
	DedupKey string         `json:"dedupKey"`
	Reason   string         `json:"reason"`
	Device   DeviceSnapshot `json:"device"`
	At       time.Time      `json:"at"`
}

func (ActivationRejected) EventType() string { return TypeActivationRejected }

// rejectionDedupKey is stable for repeated rejections of the same device in
// the same state.
func rejectionDedupKey(r *interfaces.FactoryRecord) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.SerialNumber+"|"+r.State.String())).String()
}

type DeviceDeactivated struct {
	SerialNumber string    `json:"serialNumber"`
	DeviceID     string    `json:"deviceId,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	At           time.Time `json:"at"`
}

func (DeviceDeactivated) EventType() string { return TypeDeviceDeactivated }
