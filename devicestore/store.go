package devicestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/device-activation-backend/interfaces"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements interfaces.DeviceStateStore on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ interfaces.DeviceStateStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx interfaces.DeviceStateStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) FindFactoryRecord(ctx context.Context, lookup interfaces.FactoryLookup) (*interfaces.FactoryRecord, error) {
	if lookup.Empty() {
		return nil, fmt.Errorf("%w: no device identifier", interfaces.ErrValidation)
	}

	candidates := []struct {
		column string
		value  string
	}{
		{"serial_number", lookup.SerialNumber},
		{"imei", lookup.IMEI},
		{"bssid", lookup.BSSID},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}

		var m factoryRecordModel
		err := s.db.WithContext(ctx).Where(c.column+" = ?", c.value).Order("id asc").First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query factory record: %w", err)
		}
		return m.toDomain(), nil
	}

	return nil, fmt.Errorf("%w: %s", interfaces.ErrFactoryRecordNotFound, lookup)
}

func (s *GormStore) CreateFactoryRecord(ctx context.Context, record *interfaces.FactoryRecord) error {
	if record.State == "" {
		record.State = interfaces.StateProvisioned
	}

	m := fromFactoryRecord(record)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create factory record: %w", err)
	}

	record.ID = m.ID
	record.CreatedAt = m.CreatedAt
	record.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *GormStore) UpdateFactoryState(ctx context.Context, id uint64, state interfaces.DeviceState) error {
	res := s.db.WithContext(ctx).Model(&factoryRecordModel{}).Where("id = ?", id).Update("state", string(state))
	if res.Error != nil {
		return fmt.Errorf("failed to update device state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrFactoryRecordNotFound
	}
	return nil
}

func (s *GormStore) UpdateDeviceType(ctx context.Context, id uint64, deviceType string) error {
	res := s.db.WithContext(ctx).Model(&factoryRecordModel{}).Where("id = ?", id).Update("device_type", deviceType)
	if res.Error != nil {
		return fmt.Errorf("failed to update device type: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrFactoryRecordNotFound
	}
	return nil
}

func (s *GormStore) InsertActivation(ctx context.Context, record *interfaces.ActivationRecord) error {
	m := fromActivationRecord(record)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return interfaces.ErrDuplicateActivation
		}
		return fmt.Errorf("failed to insert activation record: %w", err)
	}

	record.ID = m.ID
	record.CreatedAt = m.CreatedAt
	record.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *GormStore) SetHarmanID(ctx context.Context, id uint64, harmanID string) error {
	return s.updateActivation(ctx, id, map[string]any{"harman_id": harmanID})
}

func (s *GormStore) UpdatePasscode(ctx context.Context, id uint64, passcode string) error {
	return s.updateActivation(ctx, id, map[string]any{"passcode": passcode})
}

func (s *GormStore) UpdateActivationDeviceType(ctx context.Context, id uint64, deviceType string) error {
	return s.updateActivation(ctx, id, map[string]any{"device_type": deviceType})
}

func (s *GormStore) DisableActivation(ctx context.Context, id uint64) error {
	return s.updateActivation(ctx, id, map[string]any{"active": false, "active_factory_id": nil, "active_activation_id": nil})
}

func (s *GormStore) updateActivation(ctx context.Context, id uint64, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&activationRecordModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update activation record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrActivationNotFound
	}
	return nil
}

func (s *GormStore) FindActiveActivation(ctx context.Context, factoryRecordID uint64) (*interfaces.ActivationRecord, error) {
	var m activationRecordModel
	err := s.db.WithContext(ctx).
		Where("factory_record_id = ? AND active = ?", factoryRecordID, true).
		Order("id desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrActivationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query activation record: %w", err)
	}
	return m.toDomain(), nil
}

func (s *GormStore) FindActivationsByActivationID(ctx context.Context, activationID string) ([]interfaces.ActivationRecord, error) {
	var models []activationRecordModel
	err := s.db.WithContext(ctx).
		Where("activation_id = ? AND active = ?", activationID, true).
		Order("id asc").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query activation records: %w", err)
	}

	records := make([]interfaces.ActivationRecord, 0, len(models))
	for i := range models {
		records = append(records, *models[i].toDomain())
	}
	return records, nil
}

func (s *GormStore) FindReadiness(ctx context.Context, serialNumber string) (*interfaces.ActivationReadiness, error) {
	var m readinessModel
	err := s.db.WithContext(ctx).
		Where("serial_number = ? AND enabled = ?", serialNumber, true).
		Order("id desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrActivationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query readiness: %w", err)
	}
	return m.toDomain(), nil
}

func (s *GormStore) SaveReadiness(ctx context.Context, readiness *interfaces.ActivationReadiness) error {
	m := &readinessModel{
		SerialNumber:       readiness.SerialNumber,
		UserID:             readiness.UserID,
		AssociationPending: readiness.AssociationPending,
		Enabled:            readiness.Enabled,
		DeactivatedBy:      readiness.DeactivatedBy,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to save readiness: %w", err)
	}

	readiness.ID = m.ID
	readiness.CreatedAt = m.CreatedAt
	readiness.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *GormStore) DisableReadiness(ctx context.Context, serialNumber string, actor string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&readinessModel{}).
		Where("serial_number = ? AND enabled = ?", serialNumber, true).
		Updates(map[string]any{"enabled": false, "deactivated_by": actor})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to disable readiness: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) FindAssociation(ctx context.Context, serialNumber string) (*interfaces.Association, error) {
	var m associationModel
	err := s.db.WithContext(ctx).Where("serial_number = ?", serialNumber).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrAssociationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query association: %w", err)
	}
	return m.toDomain(), nil
}

func (s *GormStore) SaveAssociation(ctx context.Context, association *interfaces.Association) error {
	if association.TransactionStatus == "" {
		association.TransactionStatus = interfaces.TransactionPending
	}

	m := &associationModel{
		SerialNumber:      association.SerialNumber,
		VIN:               association.VIN,
		TransactionID:     association.TransactionID,
		TransactionStatus: string(association.TransactionStatus),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "serial_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"vin", "transaction_id", "transaction_status", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to save association: %w", err)
	}

	stored, err := s.FindAssociation(ctx, association.SerialNumber)
	if err != nil {
		return err
	}
	*association = *stored
	return nil
}

func (s *GormStore) UpdateAssociationTransaction(ctx context.Context, serialNumber string, status interfaces.TransactionStatus) error {
	res := s.db.WithContext(ctx).Model(&associationModel{}).
		Where("serial_number = ?", serialNumber).
		Update("transaction_status", string(status))
	if res.Error != nil {
		return fmt.Errorf("failed to update association: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrAssociationNotFound
	}
	return nil
}
