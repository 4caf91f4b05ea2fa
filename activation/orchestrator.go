package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/ruteri/device-activation-backend/metrics"
)

// Outcome is the result of an activation call together with the events it
// produced. An Outcome may accompany an error when a rejection still has
// events to deliver.
type Outcome struct {
	Result *interfaces.ActivationResult
	Events []Event
}

// DeactivationOutcome describes what a deactivation changed.
type DeactivationOutcome struct {
	SerialNumber      string
	Found             bool
	DeviceID          string
	ReadinessDisabled int64
	Events            []Event
}

// Orchestrator is the activation decision engine.
type Orchestrator struct {
	store    interfaces.DeviceStateStore
	secrets  interfaces.SecretStore
	verifier *cryptoutils.QualifierVerifier
	issuer   *Issuer
	log      *slog.Logger

	now func() time.Time
}

func NewOrchestrator(store interfaces.DeviceStateStore, secrets interfaces.SecretStore, verifier *cryptoutils.QualifierVerifier, issuer *Issuer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		secrets:  secrets,
		verifier: verifier,
		issuer:   issuer,
		log:      log,
		now:      time.Now,
	}
}

// Activate runs the qualifier-based activation of a device.
//
// Lifecycle rules, once the factory record is found and the qualifier
// verifies, in order:
//  1. stolen or faulty devices are rejected
//  2. with VIN enabled, a completed association is required
//  3. READY_TO_ACTIVATE issues a new identity and moves to ACTIVE
//  4. ACTIVE rotates the passcode of the existing identity
//  5. PROVISIONED moves to PROVISIONED_ALIVE without credentials
//  6. anything else is rejected
func (o *Orchestrator) Activate(ctx context.Context, cfg Config, req Request) (*Outcome, error) {
	outcome, err := o.activate(ctx, cfg, req)
	recordOutcome("activate", outcome, err)
	return outcome, err
}

func (o *Orchestrator) activate(ctx context.Context, cfg Config, req Request) (*Outcome, error) {
	if err := ValidateRequest(cfg, &req); err != nil {
		return nil, err
	}

	log := o.log.With("serialNumber", req.SerialNumber, "imei", req.IMEI, "bssid", req.BSSID)

	record, err := o.store.FindFactoryRecord(ctx, req.Lookup())
	if err != nil {
		log.Warn("factory record lookup failed", "err", err)
		return nil, err
	}
	log = o.log.With("serialNumber", record.SerialNumber)

	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = record.DeviceType
	}

	secret, err := o.qualifierSecret(ctx, cfg, deviceType)
	if err != nil {
		logSecretError(log, err)
		return nil, err
	}

	seed, err := o.verifier.Verify(cfg.QualifierAlgorithm, cryptoutils.QualifierInput{
		VIN:          req.VIN,
		SerialNumber: record.SerialNumber,
		Qualifier:    req.Qualifier,
		AAD:          req.AAD,
	}, secret)
	if err != nil {
		if errors.Is(err, interfaces.ErrQualifierMismatch) {
			log.Warn("qualifier verification failed", "reason", "qualifier_mismatch")
		}
		return nil, err
	}

	if record.Blocked() {
		return o.reject(cfg, record, deviceType, log)
	}

	if cfg.VINEnabled {
		if err := o.checkAssociation(ctx, record.SerialNumber); err != nil {
			log.Warn("association precondition failed", "err", err)
			return nil, err
		}
	}

	switch record.State {
	case interfaces.StateReadyToActivate:
		return o.firstActivation(ctx, cfg, record, deviceType, seed, log)
	case interfaces.StateActive:
		return o.reactivation(ctx, record, req.DeviceType, seed, log)
	case interfaces.StateProvisioned:
		if err := o.store.UpdateFactoryState(ctx, record.ID, interfaces.StateProvisionedAlive); err != nil {
			return nil, fmt.Errorf("could not mark device alive: %w", err)
		}
		log.Info("device connected without completed association", "state", interfaces.StateProvisionedAlive)
		return &Outcome{
			Result: &interfaces.ActivationResult{Outcome: interfaces.OutcomeProvisionedAlive},
			Events: []Event{DeviceProvisionedAlive{SerialNumber: record.SerialNumber, DeviceType: deviceType, At: o.now()}},
		}, nil
	default:
		return o.reject(cfg, record, deviceType, log)
	}
}

func (o *Orchestrator) firstActivation(ctx context.Context, cfg Config, record *interfaces.FactoryRecord, deviceType string, seed interfaces.QualifierSeed, log *slog.Logger) (*Outcome, error) {
	var userID string
	readiness, err := o.store.FindReadiness(ctx, record.SerialNumber)
	switch {
	case err == nil:
		userID = readiness.UserID
	case !errors.Is(err, interfaces.ErrActivationNotFound):
		return nil, fmt.Errorf("could not read readiness: %w", err)
	}

	factoryID := record.ID
	draft := interfaces.ActivationRecord{
		FactoryRecordID: &factoryID,
		SerialNumber:    record.SerialNumber,
		DeviceType:      deviceType,
	}

	activated, err := o.issuer.Issue(ctx, o.store, seed, draft, cfg.Prefix(deviceType), func(tx interfaces.DeviceStateStore) error {
		if err := tx.UpdateFactoryState(ctx, record.ID, interfaces.StateActive); err != nil {
			return err
		}
		if deviceType != record.DeviceType {
			return tx.UpdateDeviceType(ctx, record.ID, deviceType)
		}
		return nil
	})
	if activated == nil {
		if errors.Is(err, interfaces.ErrDuplicateActivation) {
			log.Warn("concurrent activation lost the race")
		}
		return nil, err
	}

	events := []Event{DeviceActivated{
		DeviceID:        activated.HarmanID,
		SerialNumber:    record.SerialNumber,
		DeviceType:      deviceType,
		UserID:          userID,
		FirstActivation: true,
		At:              o.now(),
	}}
	if err != nil {
		// Retries rotate the committed identity and never count as first.
		return &Outcome{Events: events}, err
	}

	log.Info("device activated", "deviceId", activated.HarmanID)
	return &Outcome{
		Result: &interfaces.ActivationResult{
			Outcome:  interfaces.OutcomeActivated,
			DeviceID: activated.HarmanID,
			Passcode: activated.Passcode,
		},
		Events: events,
	}, nil
}

func (o *Orchestrator) reactivation(ctx context.Context, record *interfaces.FactoryRecord, requestedType string, seed interfaces.QualifierSeed, log *slog.Logger) (*Outcome, error) {
	active, err := o.store.FindActiveActivation(ctx, record.ID)
	if errors.Is(err, interfaces.ErrActivationNotFound) {
		log.Error("active device has no activation record")
		return nil, fmt.Errorf("%w: serial %s", interfaces.ErrInconsistentState, record.SerialNumber)
	}
	if err != nil {
		return nil, err
	}

	typeChanged := requestedType != "" && !strings.EqualFold(requestedType, record.DeviceType)
	deviceType := record.DeviceType
	if typeChanged {
		deviceType = requestedType
	}

	passcode, err := o.issuer.Rotate(ctx, o.store, seed, active, deviceType, func(tx interfaces.DeviceStateStore) error {
		if !typeChanged {
			return nil
		}
		if err := tx.UpdateDeviceType(ctx, record.ID, requestedType); err != nil {
			return err
		}
		return tx.UpdateActivationDeviceType(ctx, active.ID, requestedType)
	})
	if err != nil {
		return nil, err
	}

	log.Info("device reactivated", "deviceId", active.HarmanID, "typeChanged", typeChanged)
	return &Outcome{
		Result: &interfaces.ActivationResult{
			Outcome:     interfaces.OutcomeReactivated,
			DeviceID:    active.HarmanID,
			Passcode:    passcode,
			TypeChanged: typeChanged,
		},
		Events: []Event{DeviceActivated{
			DeviceID:     active.HarmanID,
			SerialNumber: record.SerialNumber,
			DeviceType:   deviceType,
			TypeChanged:  typeChanged,
			At:           o.now(),
		}},
	}, nil
}

func (o *Orchestrator) reject(cfg Config, record *interfaces.FactoryRecord, deviceType string, log *slog.Logger) (*Outcome, error) {
	log.Warn("device in invalid state to activate", "state", record.State, "stolen", record.Stolen, "faulty", record.Faulty)

	err := fmt.Errorf("%w: %s", interfaces.ErrInvalidDeviceState, record.State)
	if !cfg.PublishesRejections(deviceType) {
		return nil, err
	}

	return &Outcome{
		Events: []Event{ActivationRejected{
			EventID:  uuid.NewString(),
			Topic:    cfg.InvalidStateTopic,
			DedupKey: rejectionDedupKey(record),
			Reason:   interfaces.ErrInvalidDeviceState.Error(),
			Device:   snapshotOf(record),
			At:       o.now(),
		}},
	}, err
}

func (o *Orchestrator) checkAssociation(ctx context.Context, serialNumber string) error {
	association, err := o.store.FindAssociation(ctx, serialNumber)
	if err != nil {
		return err
	}
	if association.VIN == "" {
		return fmt.Errorf("%w: no vin linked", interfaces.ErrAssociationNotFound)
	}
	if association.TransactionStatus != interfaces.TransactionCompleted {
		return fmt.Errorf("%w: transaction %s is %s", interfaces.ErrAssociationIncomplete, association.TransactionID, association.TransactionStatus)
	}
	return nil
}

// ActivatePreSharedKey runs the activation path for devices identified only
// by an activation id. Identities on this path always use the default prefix.
func (o *Orchestrator) ActivatePreSharedKey(ctx context.Context, cfg Config, req PSKRequest) (*Outcome, error) {
	outcome, err := o.activatePreSharedKey(ctx, cfg, req)
	recordOutcome("activate_psk", outcome, err)
	return outcome, err
}

func (o *Orchestrator) activatePreSharedKey(ctx context.Context, cfg Config, req PSKRequest) (*Outcome, error) {
	if err := ValidatePSKRequest(cfg, &req); err != nil {
		return nil, err
	}

	log := o.log.With("activationId", req.ActivationID)

	codecSecret, err := o.fetchSecret(ctx, cfg.PSKCodecSecret)
	if err != nil {
		logSecretError(log, err)
		return nil, err
	}

	reference, err := o.fetchSecret(ctx, cfg.PSKReferenceName(req.ActivationID))
	if errors.Is(err, interfaces.ErrSecretMissing) {
		log.Warn("no reference key for activation id")
		return nil, fmt.Errorf("%w: no reference key", interfaces.ErrPreSharedKeyMismatch)
	}
	if err != nil {
		return nil, err
	}

	if err := cryptoutils.MatchPreSharedKeys(codecSecret, req.PreSharedKey, string(reference)); err != nil {
		log.Warn("pre-shared key verification failed", "err", err)
		return nil, err
	}

	records, err := o.store.FindActivationsByActivationID(ctx, req.ActivationID)
	if err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		activationID := req.ActivationID
		draft := interfaces.ActivationRecord{ActivationID: &activationID, DeviceType: req.DeviceType}
		activated, err := o.issuer.Issue(ctx, o.store, 0, draft, cfg.Prefix(""), nil)
		if activated == nil {
			if errors.Is(err, interfaces.ErrDuplicateActivation) {
				log.Warn("concurrent activation lost the race")
			}
			return nil, err
		}

		events := []Event{DeviceActivated{
			DeviceID:        activated.HarmanID,
			ActivationID:    req.ActivationID,
			DeviceType:      req.DeviceType,
			FirstActivation: true,
			At:              o.now(),
		}}
		if err != nil {
			return &Outcome{Events: events}, err
		}

		log.Info("device activated", "deviceId", activated.HarmanID)
		return &Outcome{
			Result: &interfaces.ActivationResult{
				Outcome:  interfaces.OutcomeActivated,
				DeviceID: activated.HarmanID,
				Passcode: activated.Passcode,
			},
			Events: events,
		}, nil
	case 1:
		existing := &records[0]
		passcode, err := o.issuer.Rotate(ctx, o.store, interfaces.QualifierSeed(existing.QualifierSeed), existing, existing.DeviceType, nil)
		if err != nil {
			return nil, err
		}
		log.Info("device reactivated", "deviceId", existing.HarmanID)
		return &Outcome{
			Result: &interfaces.ActivationResult{
				Outcome:  interfaces.OutcomeReactivated,
				DeviceID: existing.HarmanID,
				Passcode: passcode,
			},
			Events: []Event{DeviceActivated{
				DeviceID:     existing.HarmanID,
				ActivationID: req.ActivationID,
				DeviceType:   existing.DeviceType,
				At:           o.now(),
			}},
		}, nil
	default:
		log.Error("multiple active records for activation id", "count", len(records))
		return nil, fmt.Errorf("%w: %d records", interfaces.ErrMultipleActivations, len(records))
	}
}

// Deactivate moves a device to DEACTIVATED regardless of its state, disables
// its activation record and readiness records, then disables the registered
// client best effort. It is idempotent. An unknown serial number is logged
// and reported with Found false.
func (o *Orchestrator) Deactivate(ctx context.Context, req DeactivateRequest) (*DeactivationOutcome, error) {
	trimStrings(&req)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	log := o.log.With("serialNumber", req.SerialNumber, "actor", req.Actor)
	outcome := &DeactivationOutcome{SerialNumber: req.SerialNumber}

	record, err := o.store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: req.SerialNumber})
	if errors.Is(err, interfaces.ErrFactoryRecordNotFound) {
		log.Warn("nothing to deactivate")
		metrics.RecordOutcome("deactivate", "not_found")
		return outcome, nil
	}
	if err != nil {
		metrics.RecordOutcome("deactivate", interfaces.KindOf(err).String())
		return nil, err
	}
	outcome.Found = true

	var disabled *interfaces.ActivationRecord
	err = o.store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		if err := tx.UpdateFactoryState(ctx, record.ID, interfaces.StateDeactivated); err != nil {
			return err
		}

		active, err := tx.FindActiveActivation(ctx, record.ID)
		switch {
		case err == nil:
			if err := tx.DisableActivation(ctx, active.ID); err != nil {
				return err
			}
			disabled = active
		case !errors.Is(err, interfaces.ErrActivationNotFound):
			return err
		}

		n, err := tx.DisableReadiness(ctx, req.SerialNumber, req.Actor)
		if err != nil {
			return err
		}
		outcome.ReadinessDisabled = n
		return nil
	})
	if err != nil {
		metrics.RecordOutcome("deactivate", interfaces.KindOf(err).String())
		return nil, fmt.Errorf("could not deactivate device: %w", err)
	}

	if disabled != nil {
		outcome.DeviceID = disabled.HarmanID
		o.issuer.Disable(ctx, disabled)
	}

	log.Info("device deactivated", "deviceId", outcome.DeviceID, "readinessDisabled", outcome.ReadinessDisabled)
	metrics.RecordOutcome("deactivate", "deactivated")

	outcome.Events = []Event{DeviceDeactivated{
		SerialNumber: req.SerialNumber,
		DeviceID:     outcome.DeviceID,
		Actor:        req.Actor,
		At:           o.now(),
	}}
	return outcome, nil
}

// qualifierSecret returns the first configured qualifier secret for deviceType.
func (o *Orchestrator) qualifierSecret(ctx context.Context, cfg Config, deviceType string) ([]byte, error) {
	for _, name := range cfg.QualifierSecretNames(deviceType) {
		secret, err := o.fetchSecret(ctx, name)
		if errors.Is(err, interfaces.ErrSecretMissing) {
			continue
		}
		return secret, err
	}
	return nil, fmt.Errorf("%w: no qualifier secret for %q", interfaces.ErrSecretMissing, deviceType)
}

func (o *Orchestrator) fetchSecret(ctx context.Context, name string) ([]byte, error) {
	secret, err := o.secrets.Fetch(ctx, name)
	switch {
	case errors.Is(err, interfaces.ErrContentNotFound):
		return nil, fmt.Errorf("%w: %s", interfaces.ErrSecretMissing, name)
	case err != nil:
		return nil, fmt.Errorf("could not fetch secret %s: %w", name, err)
	case len(secret) == 0:
		return nil, fmt.Errorf("%w: %s is empty", interfaces.ErrSecretMissing, name)
	}
	return secret, nil
}

func logSecretError(log *slog.Logger, err error) {
	if errors.Is(err, interfaces.ErrSecretMissing) {
		log.Error("shared secret missing from secret store", "reason", "secret_missing", "err", err)
		return
	}
	log.Error("could not read shared secret", "err", err)
}

func recordOutcome(operation string, outcome *Outcome, err error) {
	if err != nil {
		metrics.RecordOutcome(operation, interfaces.KindOf(err).String())
		return
	}
	metrics.RecordOutcome(operation, outcome.Result.Outcome.String())
}
