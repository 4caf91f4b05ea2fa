package activation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// ReadinessRequest records that a user is allowed to activate a device.
type ReadinessRequest struct {
	SerialNumber       string `field:"serialNumber" validate:"required"`
	UserID             string `field:"userId" validate:"required"`
	AssociationPending bool   `field:"associationPending"`
}

// AssociationRequest links a VIN to a device through a provisioning transaction.
type AssociationRequest struct {
	SerialNumber      string                       `field:"serialNumber" validate:"required"`
	VIN               string                       `field:"vin" validate:"required"`
	TransactionID     string                       `field:"transactionId" validate:"required"`
	TransactionStatus interfaces.TransactionStatus `field:"transactionStatus" validate:"omitempty,oneof=Pending Completed Failed"`
}

// DeviceStatus is the operator view of a device. It never carries a passcode.
type DeviceStatus struct {
	Factory     *interfaces.FactoryRecord
	DeviceID    string
	Readiness   *interfaces.ActivationReadiness
	Association *interfaces.Association
}

// MarkReady records readiness and, unless the association is still pending,
// moves the device from PROVISIONED or PROVISIONED_ALIVE to READY_TO_ACTIVATE.
func (o *Orchestrator) MarkReady(ctx context.Context, req ReadinessRequest) (*interfaces.FactoryRecord, error) {
	trimStrings(&req)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	record, err := o.store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: req.SerialNumber})
	if err != nil {
		return nil, err
	}
	if record.Blocked() {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrInvalidDeviceState, record.State)
	}

	advance := !req.AssociationPending
	switch record.State {
	case interfaces.StateProvisioned, interfaces.StateProvisionedAlive:
	case interfaces.StateReadyToActivate:
		advance = false
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrInvalidDeviceState, record.State)
	}

	err = o.store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		if err := tx.SaveReadiness(ctx, &interfaces.ActivationReadiness{
			SerialNumber:       req.SerialNumber,
			UserID:             req.UserID,
			AssociationPending: req.AssociationPending,
			Enabled:            true,
		}); err != nil {
			return err
		}
		if advance {
			record.State = interfaces.StateReadyToActivate
			return tx.UpdateFactoryState(ctx, record.ID, interfaces.StateReadyToActivate)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not record readiness: %w", err)
	}

	o.log.Info("activation readiness recorded", "serialNumber", req.SerialNumber, "userId", req.UserID, "state", record.State)
	return record, nil
}

// RecordAssociation stores the VIN association for a device.
func (o *Orchestrator) RecordAssociation(ctx context.Context, req AssociationRequest) (*interfaces.Association, error) {
	trimStrings(&req)
	if req.TransactionStatus == "" {
		req.TransactionStatus = interfaces.TransactionPending
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	if _, err := o.store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: req.SerialNumber}); err != nil {
		return nil, err
	}

	association := &interfaces.Association{
		SerialNumber:      req.SerialNumber,
		VIN:               req.VIN,
		TransactionID:     req.TransactionID,
		TransactionStatus: req.TransactionStatus,
	}
	if err := o.store.SaveAssociation(ctx, association); err != nil {
		return nil, fmt.Errorf("could not save association: %w", err)
	}

	if association.TransactionStatus == interfaces.TransactionCompleted {
		if err := o.completePendingReadiness(ctx, req.SerialNumber); err != nil {
			return nil, err
		}
	}
	return association, nil
}

// UpdateAssociationTransaction sets the provisioning transaction status. A
// Completed status releases readiness that was waiting for the association.
func (o *Orchestrator) UpdateAssociationTransaction(ctx context.Context, serialNumber string, status interfaces.TransactionStatus) error {
	switch status {
	case interfaces.TransactionPending, interfaces.TransactionCompleted, interfaces.TransactionFailed:
	default:
		return fmt.Errorf("%w: unknown transaction status %q", interfaces.ErrValidation, status)
	}

	if err := o.store.UpdateAssociationTransaction(ctx, serialNumber, status); err != nil {
		return err
	}

	if status == interfaces.TransactionCompleted {
		return o.completePendingReadiness(ctx, serialNumber)
	}
	return nil
}

func (o *Orchestrator) completePendingReadiness(ctx context.Context, serialNumber string) error {
	readiness, err := o.store.FindReadiness(ctx, serialNumber)
	if errors.Is(err, interfaces.ErrActivationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !readiness.AssociationPending {
		return nil
	}

	record, err := o.store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: serialNumber})
	if err != nil {
		return err
	}
	if record.Blocked() || (record.State != interfaces.StateProvisioned && record.State != interfaces.StateProvisionedAlive) {
		return nil
	}

	return o.store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		if err := tx.SaveReadiness(ctx, &interfaces.ActivationReadiness{
			SerialNumber: serialNumber,
			UserID:       readiness.UserID,
			Enabled:      true,
		}); err != nil {
			return err
		}
		o.log.Info("association completed, device ready to activate", "serialNumber", serialNumber)
		return tx.UpdateFactoryState(ctx, record.ID, interfaces.StateReadyToActivate)
	})
}

// Status returns the operator view of a device.
func (o *Orchestrator) Status(ctx context.Context, serialNumber string) (*DeviceStatus, error) {
	record, err := o.store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: serialNumber})
	if err != nil {
		return nil, err
	}

	status := &DeviceStatus{Factory: record}

	active, err := o.store.FindActiveActivation(ctx, record.ID)
	switch {
	case err == nil:
		status.DeviceID = active.HarmanID
	case !errors.Is(err, interfaces.ErrActivationNotFound):
		return nil, err
	}

	readiness, err := o.store.FindReadiness(ctx, serialNumber)
	switch {
	case err == nil:
		status.Readiness = readiness
	case !errors.Is(err, interfaces.ErrActivationNotFound):
		return nil, err
	}

	association, err := o.store.FindAssociation(ctx, serialNumber)
	switch {
	case err == nil:
		status.Association = association
	case !errors.Is(err, interfaces.ErrAssociationNotFound):
		return nil, err
	}

	return status, nil
}

// RegisterFactoryRecord imports an inventory entry.
func (o *Orchestrator) RegisterFactoryRecord(ctx context.Context, record *interfaces.FactoryRecord) error {
	lookup := interfaces.FactoryLookup{SerialNumber: record.SerialNumber, IMEI: record.IMEI, BSSID: record.BSSID}
	if lookup.Empty() {
		return fmt.Errorf("%w: one of serialNumber, imei or bssid is required", interfaces.ErrValidation)
	}
	if record.State == "" {
		record.State = interfaces.StateProvisioned
	}
	if err := o.store.CreateFactoryRecord(ctx, record); err != nil {
		return fmt.Errorf("could not create factory record: %w", err)
	}
	o.log.Info("factory record registered", "serialNumber", record.SerialNumber, "id", record.ID)
	return nil
}
