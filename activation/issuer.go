package activation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/ruteri/device-activation-backend/metrics"
)

// deviceIDDigits is the zero-padded width of the encoded sequence id.
const deviceIDDigits = 8

// Partial failure steps.
const (
	StepToken         = "token"
	StepCreateClient  = "create_client"
	StepPersistRotate = "persist_passcode"
)

// EncodeDeviceID renders a device identity from a prefix and the sequence id
// assigned by the store.
func EncodeDeviceID(prefix string, id uint64) string {
	encoded := strings.ToUpper(strconv.FormatUint(id, 36))
	if len(encoded) < deviceIDDigits {
		encoded = strings.Repeat("0", deviceIDDigits-len(encoded)) + encoded
	}
	return prefix + encoded
}

// Issuer generates passcodes and device identities and keeps the external
// credential-registration service in sync with local activation records.
type Issuer struct {
	registration interfaces.RegistrationClient
	tokens       interfaces.TokenSource
	log          *slog.Logger

	generatePasscode func(interfaces.QualifierSeed) (string, error)
}

func NewIssuer(registration interfaces.RegistrationClient, tokens interfaces.TokenSource, log *slog.Logger) *Issuer {
	return &Issuer{
		registration:     registration,
		tokens:           tokens,
		log:              log,
		generatePasscode: cryptoutils.GeneratePasscode,
	}
}

// Issue creates a new activation record from draft, assigns its device
// identity and registers it externally. inTx runs inside the same
// transaction as the insert and may be nil.
//
// A unique-constraint violation surfaces as interfaces.ErrDuplicateActivation.
// Failures after the local commit return *interfaces.PartialFailureError and
// the committed record.
func (i *Issuer) Issue(ctx context.Context, store interfaces.DeviceStateStore, seed interfaces.QualifierSeed, draft interfaces.ActivationRecord, prefix string, inTx func(tx interfaces.DeviceStateStore) error) (*interfaces.ActivationRecord, error) {
	passcode, err := i.generatePasscode(seed)
	if err != nil {
		return nil, fmt.Errorf("could not generate passcode: %w", err)
	}

	record := draft
	record.Passcode = passcode
	record.QualifierSeed = int64(seed)
	record.Active = true

	err = store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		if err := tx.InsertActivation(ctx, &record); err != nil {
			return err
		}
		record.HarmanID = EncodeDeviceID(prefix, record.ID)
		if err := tx.SetHarmanID(ctx, record.ID, record.HarmanID); err != nil {
			return err
		}
		if inTx != nil {
			return inTx(tx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not persist activation: %w", err)
	}

	if err := i.register(ctx, &record); err != nil {
		return &record, err
	}

	i.log.Info("issued device identity", "deviceId", record.HarmanID, "serialNumber", record.SerialNumber, "deviceType", record.DeviceType)
	return &record, nil
}

func (i *Issuer) register(ctx context.Context, record *interfaces.ActivationRecord) error {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		metrics.RecordExternalFailure("token")
		return &interfaces.PartialFailureError{DeviceID: record.HarmanID, Step: StepToken, Err: err}
	}

	if err := i.registration.CreateClient(ctx, token, record.HarmanID, record.Passcode, record.DeviceType); err != nil {
		metrics.RecordExternalFailure("registration")
		i.log.Error("device left without external registration", "deviceId", record.HarmanID, "err", err)
		return &interfaces.PartialFailureError{DeviceID: record.HarmanID, Step: StepCreateClient, Err: err}
	}
	return nil
}

// Rotate replaces the passcode of an existing activation record. The
// sequence is revoke, generate, re-register, persist. A failure before the
// revoke completes leaves everything unchanged. Any later failure leaves the
// device without a valid external registration and is reported as
// *interfaces.PartialFailureError. It is not retried.
//
// deviceType is the type to register; inTx runs in the transaction that
// persists the new passcode and may be nil.
func (i *Issuer) Rotate(ctx context.Context, store interfaces.DeviceStateStore, seed interfaces.QualifierSeed, record *interfaces.ActivationRecord, deviceType string, inTx func(tx interfaces.DeviceStateStore) error) (string, error) {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		metrics.RecordExternalFailure("token")
		return "", fmt.Errorf("could not fetch registration token: %w", err)
	}

	if err := i.registration.DeleteClient(ctx, token, record.HarmanID); err != nil {
		metrics.RecordExternalFailure("registration")
		return "", fmt.Errorf("could not revoke registration: %w", err)
	}

	passcode, err := i.generatePasscode(seed)
	if err != nil {
		return "", &interfaces.PartialFailureError{DeviceID: record.HarmanID, Step: "generate_passcode", Err: err}
	}

	rotated := *record
	rotated.Passcode = passcode
	if deviceType != "" {
		rotated.DeviceType = deviceType
	}
	if err := i.register(ctx, &rotated); err != nil {
		return "", err
	}

	err = store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		if err := tx.UpdatePasscode(ctx, record.ID, passcode); err != nil {
			return err
		}
		if inTx != nil {
			return inTx(tx)
		}
		return nil
	})
	if err != nil {
		i.log.Error("registered passcode not persisted", "deviceId", record.HarmanID, "err", err)
		return "", &interfaces.PartialFailureError{DeviceID: record.HarmanID, Step: StepPersistRotate, Err: err}
	}

	i.log.Info("rotated device passcode", "deviceId", record.HarmanID)
	return passcode, nil
}

// Disable marks the registered client of record as disabled. Failures are
// logged and counted, never returned.
func (i *Issuer) Disable(ctx context.Context, record *interfaces.ActivationRecord) {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		metrics.RecordExternalFailure("token")
		i.log.Warn("could not disable registered client", "deviceId", record.HarmanID, "err", err)
		return
	}

	if err := i.registration.UpdateClient(ctx, token, record.HarmanID, record.Passcode, record.DeviceType, interfaces.ClientDisabled); err != nil {
		metrics.RecordExternalFailure("registration")
		i.log.Warn("could not disable registered client", "deviceId", record.HarmanID, "err", err)
	}
}
