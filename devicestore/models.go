package devicestore

import (
	"time"

	"github.com/ruteri/device-activation-backend/interfaces"
)

type factoryRecordModel struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	SerialNumber string `gorm:"size:128;index"`
	IMEI         string `gorm:"column:imei;size:64;index"`
	BSSID        string `gorm:"column:bssid;size:64;index"`
	VIN          string `gorm:"column:vin;size:64"`
	HWVersion    string `gorm:"column:hw_version;size:64"`
	SWVersion    string `gorm:"column:sw_version;size:64"`
	DeviceType   string `gorm:"size:64"`
	ICCID        string `gorm:"column:iccid;size:64"`
	MSISDN       string `gorm:"column:msisdn;size:64"`
	IMSI         string `gorm:"column:imsi;size:64"`
	SSID         string `gorm:"column:ssid;size:128"`
	Stolen       bool
	Faulty       bool
	State        string `gorm:"size:32;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (factoryRecordModel) TableName() string { return "factory_records" }

// activationRecordModel carries ActiveFactoryID and ActiveActivationID,
// copies of FactoryRecordID and ActivationID that are only set while the
// record is active. Their unique indexes allow at most one active record per
// factory record and per activation id.
type activationRecordModel struct {
	ID                 uint64  `gorm:"primaryKey;autoIncrement"`
	HarmanID           string  `gorm:"size:32;index"`
	Passcode           string  `gorm:"size:128"`
	FactoryRecordID    *uint64 `gorm:"index"`
	ActiveFactoryID    *uint64 `gorm:"uniqueIndex"`
	ActivationID       *string `gorm:"size:128;index"`
	ActiveActivationID *string `gorm:"size:128;uniqueIndex"`
	SerialNumber       string  `gorm:"size:128"`
	DeviceType         string  `gorm:"size:64"`
	QualifierSeed      int64
	Active             bool `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (activationRecordModel) TableName() string { return "activation_records" }

type readinessModel struct {
	ID                 uint64 `gorm:"primaryKey;autoIncrement"`
	SerialNumber       string `gorm:"size:128;index"`
	UserID             string `gorm:"size:128"`
	AssociationPending bool
	Enabled            bool   `gorm:"index"`
	DeactivatedBy      string `gorm:"size:128"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (readinessModel) TableName() string { return "activation_readiness" }

type associationModel struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	SerialNumber      string `gorm:"size:128;uniqueIndex"`
	VIN               string `gorm:"column:vin;size:64"`
	TransactionID     string `gorm:"size:128"`
	TransactionStatus string `gorm:"size:32"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (associationModel) TableName() string { return "associations" }

func allModels() []any {
	return []any{
		&factoryRecordModel{},
		&activationRecordModel{},
		&readinessModel{},
		&associationModel{},
	}
}

func fromFactoryRecord(r *interfaces.FactoryRecord) *factoryRecordModel {
	return &factoryRecordModel{
		ID:           r.ID,
		SerialNumber: r.SerialNumber,
		IMEI:         r.IMEI,
		BSSID:        r.BSSID,
		VIN:          r.VIN,
		HWVersion:    r.HWVersion,
		SWVersion:    r.SWVersion,
		DeviceType:   r.DeviceType,
		ICCID:        r.ICCID,
		MSISDN:       r.MSISDN,
		IMSI:         r.IMSI,
		SSID:         r.SSID,
		Stolen:       r.Stolen,
		Faulty:       r.Faulty,
		State:        string(r.State),
	}
}

func (m *factoryRecordModel) toDomain() *interfaces.FactoryRecord {
	return &interfaces.FactoryRecord{
		ID:           m.ID,
		SerialNumber: m.SerialNumber,
		IMEI:         m.IMEI,
		BSSID:        m.BSSID,
		VIN:          m.VIN,
		HWVersion:    m.HWVersion,
		SWVersion:    m.SWVersion,
		DeviceType:   m.DeviceType,
		ICCID:        m.ICCID,
		MSISDN:       m.MSISDN,
		IMSI:         m.IMSI,
		SSID:         m.SSID,
		Stolen:       m.Stolen,
		Faulty:       m.Faulty,
		State:        interfaces.DeviceState(m.State),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromActivationRecord(r *interfaces.ActivationRecord) *activationRecordModel {
	m := &activationRecordModel{
		ID:              r.ID,
		HarmanID:        r.HarmanID,
		Passcode:        r.Passcode,
		FactoryRecordID: r.FactoryRecordID,
		ActivationID:    r.ActivationID,
		SerialNumber:    r.SerialNumber,
		DeviceType:      r.DeviceType,
		QualifierSeed:   r.QualifierSeed,
		Active:          r.Active,
	}
	if r.Active && r.FactoryRecordID != nil {
		id := *r.FactoryRecordID
		m.ActiveFactoryID = &id
	}
	if r.Active && r.ActivationID != nil {
		id := *r.ActivationID
		m.ActiveActivationID = &id
	}
	return m
}

func (m *activationRecordModel) toDomain() *interfaces.ActivationRecord {
	return &interfaces.ActivationRecord{
		ID:              m.ID,
		HarmanID:        m.HarmanID,
		Passcode:        m.Passcode,
		FactoryRecordID: m.FactoryRecordID,
		ActivationID:    m.ActivationID,
		SerialNumber:    m.SerialNumber,
		DeviceType:      m.DeviceType,
		QualifierSeed:   m.QualifierSeed,
		Active:          m.Active,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (m *readinessModel) toDomain() *interfaces.ActivationReadiness {
	return &interfaces.ActivationReadiness{
		ID:                 m.ID,
		SerialNumber:       m.SerialNumber,
		UserID:             m.UserID,
		AssociationPending: m.AssociationPending,
		Enabled:            m.Enabled,
		DeactivatedBy:      m.DeactivatedBy,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func (m *associationModel) toDomain() *interfaces.Association {
	return &interfaces.Association{
		ID:                m.ID,
		SerialNumber:      m.SerialNumber,
		VIN:               m.VIN,
		TransactionID:     m.TransactionID,
		TransactionStatus: interfaces.TransactionStatus(m.TransactionStatus),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
