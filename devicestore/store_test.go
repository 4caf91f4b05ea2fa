package devicestore

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := OpenInMemory(slog.Default())
	require.NoError(t, err)
	return store
}

func createFactoryRecord(t *testing.T, store *GormStore, serial string) *interfaces.FactoryRecord {
	t.Helper()
	record := &interfaces.FactoryRecord{
		SerialNumber: serial,
		IMEI:         "imei-" + serial,
		BSSID:        "bssid-" + serial,
		VIN:          "VIN-" + serial,
		DeviceType:   "dongle",
	}
	require.NoError(t, store.CreateFactoryRecord(context.Background(), record))
	require.NotZero(t, record.ID)
	return record
}

func TestFindFactoryRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := createFactoryRecord(t, store, "SN1")

	testCases := []struct {
		name        string
		lookup      interfaces.FactoryLookup
		expectedErr error
	}{
		{name: "By serial", lookup: interfaces.FactoryLookup{SerialNumber: "SN1"}},
		{name: "By IMEI", lookup: interfaces.FactoryLookup{IMEI: "imei-SN1"}},
		{name: "By BSSID", lookup: interfaces.FactoryLookup{BSSID: "bssid-SN1"}},
		{name: "Unknown serial falls back to IMEI", lookup: interfaces.FactoryLookup{SerialNumber: "nope", IMEI: "imei-SN1"}},
		{name: "Unknown", lookup: interfaces.FactoryLookup{SerialNumber: "nope"}, expectedErr: interfaces.ErrFactoryRecordNotFound},
		{name: "Empty lookup", lookup: interfaces.FactoryLookup{}, expectedErr: interfaces.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			found, err := store.FindFactoryRecord(ctx, tc.lookup)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, record.ID, found.ID)
			require.Equal(t, interfaces.StateProvisioned, found.State)
		})
	}
}

func TestFactoryRecordUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := createFactoryRecord(t, store, "SN1")

	require.NoError(t, store.UpdateFactoryState(ctx, record.ID, interfaces.StateActive))
	require.NoError(t, store.UpdateDeviceType(ctx, record.ID, "headunit"))

	found, err := store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: "SN1"})
	require.NoError(t, err)
	require.Equal(t, interfaces.StateActive, found.State)
	require.Equal(t, "headunit", found.DeviceType)

	require.ErrorIs(t, store.UpdateFactoryState(ctx, 9999, interfaces.StateActive), interfaces.ErrFactoryRecordNotFound)
}

func TestSingleActiveActivationPerFactoryRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := createFactoryRecord(t, store, "SN1")

	first := &interfaces.ActivationRecord{FactoryRecordID: &record.ID, Passcode: "p1", Active: true}
	require.NoError(t, store.InsertActivation(ctx, first))
	require.NoError(t, store.SetHarmanID(ctx, first.ID, "HA00000001"))

	second := &interfaces.ActivationRecord{FactoryRecordID: &record.ID, Passcode: "p2", Active: true}
	require.ErrorIs(t, store.InsertActivation(ctx, second), interfaces.ErrDuplicateActivation)

	active, err := store.FindActiveActivation(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "HA00000001", active.HarmanID)
	require.Equal(t, "p1", active.Passcode)

	// Once disabled, a new active record can be inserted.
	require.NoError(t, store.DisableActivation(ctx, first.ID))
	_, err = store.FindActiveActivation(ctx, record.ID)
	require.ErrorIs(t, err, interfaces.ErrActivationNotFound)

	require.NoError(t, store.InsertActivation(ctx, second))
	active, err = store.FindActiveActivation(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)

	require.NoError(t, store.UpdatePasscode(ctx, second.ID, "p3"))
	active, err = store.FindActiveActivation(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "p3", active.Passcode)

	require.ErrorIs(t, store.UpdatePasscode(ctx, 9999, "x"), interfaces.ErrActivationNotFound)
}

func TestConcurrentFirstActivationsConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := createFactoryRecord(t, store, "SN1")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
				return tx.InsertActivation(ctx, &interfaces.ActivationRecord{FactoryRecordID: &record.ID, Active: true})
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, interfaces.ErrDuplicateActivation)
	}
	require.Equal(t, 1, succeeded)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := createFactoryRecord(t, store, "SN1")

	err := store.WithTx(ctx, func(tx interfaces.DeviceStateStore) error {
		require.NoError(t, tx.UpdateFactoryState(ctx, record.ID, interfaces.StateActive))
		return interfaces.ErrRegistrationFailed
	})
	require.ErrorIs(t, err, interfaces.ErrRegistrationFailed)

	found, err := store.FindFactoryRecord(ctx, interfaces.FactoryLookup{SerialNumber: "SN1"})
	require.NoError(t, err)
	require.Equal(t, interfaces.StateProvisioned, found.State)
}

func TestActivationsByActivationID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	activationID := "act-1"
	records, err := store.FindActivationsByActivationID(ctx, activationID)
	require.NoError(t, err)
	require.Empty(t, records)

	first := &interfaces.ActivationRecord{ActivationID: &activationID, DeviceType: "dongle", Active: true}
	require.NoError(t, store.InsertActivation(ctx, first))
	require.NoError(t, store.InsertActivation(ctx, &interfaces.ActivationRecord{ActivationID: &activationID}))

	records, err = store.FindActivationsByActivationID(ctx, activationID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, activationID, *records[0].ActivationID)

	require.NoError(t, store.UpdateActivationDeviceType(ctx, first.ID, "tcu-gen2"))
	records, err = store.FindActivationsByActivationID(ctx, activationID)
	require.NoError(t, err)
	require.Equal(t, "tcu-gen2", records[0].DeviceType)
	require.ErrorIs(t, store.UpdateActivationDeviceType(ctx, 9999, "x"), interfaces.ErrActivationNotFound)
}

func TestSingleActiveActivationPerActivationID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	activationID := "act-1"
	otherID := "act-2"

	first := &interfaces.ActivationRecord{ActivationID: &activationID, Passcode: "p1", Active: true}
	require.NoError(t, store.InsertActivation(ctx, first))

	second := &interfaces.ActivationRecord{ActivationID: &activationID, Passcode: "p2", Active: true}
	require.ErrorIs(t, store.InsertActivation(ctx, second), interfaces.ErrDuplicateActivation)
	require.NoError(t, store.InsertActivation(ctx, &interfaces.ActivationRecord{ActivationID: &otherID, Active: true}))

	require.NoError(t, store.DisableActivation(ctx, first.ID))
	require.NoError(t, store.InsertActivation(ctx, second))

	records, err := store.FindActivationsByActivationID(ctx, activationID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, second.ID, records[0].ID)
}

func TestStatementLogOmitsBoundValues(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := OpenInMemory(log)
	require.NoError(t, err)
	record := createFactoryRecord(t, store, "SN1")

	activation := &interfaces.ActivationRecord{FactoryRecordID: &record.ID, Passcode: "first-passcode-4f9c", Active: true}
	require.NoError(t, store.InsertActivation(ctx, activation))
	require.NoError(t, store.UpdatePasscode(ctx, activation.ID, "rotated-passcode-81d2"))

	output := buf.String()
	require.Contains(t, output, "activation_records")
	require.NotContains(t, output, "first-passcode-4f9c")
	require.NotContains(t, output, "rotated-passcode-81d2")
}

func TestReadiness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.FindReadiness(ctx, "SN1")
	require.ErrorIs(t, err, interfaces.ErrActivationNotFound)

	require.NoError(t, store.SaveReadiness(ctx, &interfaces.ActivationReadiness{SerialNumber: "SN1", UserID: "u1", Enabled: true}))
	require.NoError(t, store.SaveReadiness(ctx, &interfaces.ActivationReadiness{SerialNumber: "SN1", UserID: "u2", Enabled: true}))

	readiness, err := store.FindReadiness(ctx, "SN1")
	require.NoError(t, err)
	require.Equal(t, "u2", readiness.UserID)

	n, err := store.DisableReadiness(ctx, "SN1", "admin")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = store.DisableReadiness(ctx, "SN1", "admin")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = store.FindReadiness(ctx, "SN1")
	require.ErrorIs(t, err, interfaces.ErrActivationNotFound)
}

func TestAssociations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.FindAssociation(ctx, "SN1")
	require.ErrorIs(t, err, interfaces.ErrAssociationNotFound)
	require.ErrorIs(t, store.UpdateAssociationTransaction(ctx, "SN1", interfaces.TransactionCompleted), interfaces.ErrAssociationNotFound)

	association := &interfaces.Association{SerialNumber: "SN1", VIN: "VIN1", TransactionID: "tx1"}
	require.NoError(t, store.SaveAssociation(ctx, association))
	require.Equal(t, interfaces.TransactionPending, association.TransactionStatus)

	// Saving again replaces the association for the serial number.
	require.NoError(t, store.SaveAssociation(ctx, &interfaces.Association{SerialNumber: "SN1", VIN: "VIN2", TransactionID: "tx2"}))
	require.NoError(t, store.UpdateAssociationTransaction(ctx, "SN1", interfaces.TransactionCompleted))

	found, err := store.FindAssociation(ctx, "SN1")
	require.NoError(t, err)
	require.Equal(t, "VIN2", found.VIN)
	require.Equal(t, "tx2", found.TransactionID)
	require.Equal(t, interfaces.TransactionCompleted, found.TransactionStatus)
	require.Equal(t, association.ID, found.ID)
}
