package activation

import (
	"context"
	"sync"
	"testing"

	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var codecSecret = []byte("psk-codec-secret")

func (e *testEnv) providePSK(t *testing.T, activationID string, key []byte) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.secrets.Store(ctx, "psk/codec", codecSecret))

	reference, err := cryptoutils.EncryptPreSharedKey(codecSecret, key)
	require.NoError(t, err)
	require.NoError(t, e.secrets.Store(ctx, "psk/reference/"+activationID, []byte(reference)))

	// The device encrypts independently, so its ciphertext differs from the reference.
	requestKey, err := cryptoutils.EncryptPreSharedKey(codecSecret, key)
	require.NoError(t, err)
	return requestKey
}

func TestPreSharedKeyActivation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.allowRegistration()
	requestKey := env.providePSK(t, "act-1", []byte("device-psk-0001"))

	first, err := env.orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), PSKRequest{ActivationID: "act-1", PreSharedKey: requestKey})
	require.NoError(t, err)
	require.Equal(t, interfaces.OutcomeActivated, first.Result.Outcome)
	require.NotEmpty(t, first.Result.DeviceID)
	require.NotEmpty(t, first.Result.Passcode)

	second, err := env.orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), PSKRequest{ActivationID: "act-1", PreSharedKey: requestKey})
	require.NoError(t, err)
	require.Equal(t, interfaces.OutcomeReactivated, second.Result.Outcome)
	require.Equal(t, first.Result.DeviceID, second.Result.DeviceID)
	require.NotEqual(t, first.Result.Passcode, second.Result.Passcode)

}

// staleActivationReads answers FindActivationsByActivationID from a fixed
// result, as a reader racing another writer would see it.
type staleActivationReads struct {
	interfaces.DeviceStateStore
	records func(activationID string) []interfaces.ActivationRecord
}

func (s *staleActivationReads) FindActivationsByActivationID(ctx context.Context, activationID string) ([]interfaces.ActivationRecord, error) {
	return s.records(activationID), nil
}

func (e *testEnv) orchestratorWithStore(store interfaces.DeviceStateStore) *Orchestrator {
	log := testLogger()
	return NewOrchestrator(store, e.secrets, e.verifier, NewIssuer(e.registration, e.tokens, log), log)
}

func TestPreSharedKeyMultipleActiveRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.allowRegistration()
	requestKey := env.providePSK(t, "act-4", []byte("device-psk-0004"))

	activationID := "act-4"
	orchestrator := env.orchestratorWithStore(&staleActivationReads{
		DeviceStateStore: env.store,
		records: func(string) []interfaces.ActivationRecord {
			return []interfaces.ActivationRecord{
				{ID: 1, ActivationID: &activationID, Active: true},
				{ID: 2, ActivationID: &activationID, Active: true},
			}
		},
	})

	_, err := orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), PSKRequest{ActivationID: "act-4", PreSharedKey: requestKey})
	require.ErrorIs(t, err, interfaces.ErrMultipleActivations)
	require.Equal(t, interfaces.KindDataIntegrity, interfaces.KindOf(err))
	env.registration.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPreSharedKeyRacingFirstActivations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.allowRegistration()
	requestKey := env.providePSK(t, "act-5", []byte("device-psk-0005"))
	req := PSKRequest{ActivationID: "act-5", PreSharedKey: requestKey}

	// Both requests see no active record before either inserts.
	racing := env.orchestratorWithStore(&staleActivationReads{
		DeviceStateStore: env.store,
		records:          func(string) []interfaces.ActivationRecord { return nil },
	})

	winner, err := racing.ActivatePreSharedKey(ctx, DefaultConfig(), req)
	require.NoError(t, err)
	require.Equal(t, interfaces.OutcomeActivated, winner.Result.Outcome)

	loser, err := racing.ActivatePreSharedKey(ctx, DefaultConfig(), req)
	require.ErrorIs(t, err, interfaces.ErrDuplicateActivation)
	require.Equal(t, interfaces.KindDuplicateActivation, interfaces.KindOf(err))
	require.Nil(t, loser)
	env.registration.AssertNumberOfCalls(t, "CreateClient", 1)

	records, err := env.store.FindActivationsByActivationID(ctx, "act-5")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The activation id stays usable.
	next, err := env.orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), req)
	require.NoError(t, err)
	require.Equal(t, interfaces.OutcomeReactivated, next.Result.Outcome)
	require.Equal(t, winner.Result.DeviceID, next.Result.DeviceID)
}

func TestConcurrentPreSharedKeyActivation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.allowRegistration()
	requestKey := env.providePSK(t, "act-6", []byte("device-psk-0006"))

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, 6)
	errs := make([]error, len(outcomes))
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = env.orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), PSKRequest{ActivationID: "act-6", PreSharedKey: requestKey})
		}(i)
	}
	wg.Wait()

	records, err := env.store.FindActivationsByActivationID(ctx, "act-6")
	require.NoError(t, err)
	require.Len(t, records, 1)

	activated := 0
	for i, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, interfaces.ErrDuplicateActivation)
			continue
		}
		require.Equal(t, records[0].HarmanID, outcomes[i].Result.DeviceID)
		if outcomes[i].Result.Outcome == interfaces.OutcomeActivated {
			activated++
		}
	}
	require.Equal(t, 1, activated)
}

func TestPreSharedKeyRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	requestKey := env.providePSK(t, "act-2", []byte("device-psk-0002"))

	otherKey, err := cryptoutils.EncryptPreSharedKey(codecSecret, []byte("device-psk-9999"))
	require.NoError(t, err)
	foreignKey, err := cryptoutils.EncryptPreSharedKey([]byte("other-secret"), []byte("device-psk-0002"))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		req      PSKRequest
		expected error
	}{
		{name: "missing activation id", req: PSKRequest{PreSharedKey: requestKey}, expected: interfaces.ErrValidation},
		{name: "blank key", req: PSKRequest{ActivationID: "act-2", PreSharedKey: " "}, expected: interfaces.ErrPreSharedKeyMismatch},
		{name: "different plaintext", req: PSKRequest{ActivationID: "act-2", PreSharedKey: otherKey}, expected: interfaces.ErrPreSharedKeyMismatch},
		{name: "encrypted with another secret", req: PSKRequest{ActivationID: "act-2", PreSharedKey: foreignKey}, expected: interfaces.ErrPreSharedKeyMismatch},
		{name: "no reference key", req: PSKRequest{ActivationID: "act-3", PreSharedKey: requestKey}, expected: interfaces.ErrPreSharedKeyMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.orchestrator.ActivatePreSharedKey(ctx, DefaultConfig(), tc.req)
			require.ErrorIs(t, err, tc.expected)
		})
	}

	t.Run("codec secret missing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PSKCodecSecret = "psk/absent"
		_, err := env.orchestrator.ActivatePreSharedKey(ctx, cfg, PSKRequest{ActivationID: "act-2", PreSharedKey: requestKey})
		require.ErrorIs(t, err, interfaces.ErrSecretMissing)
		require.Equal(t, interfaces.KindPreconditionFailed, interfaces.KindOf(err))
	})

	env.registration.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
