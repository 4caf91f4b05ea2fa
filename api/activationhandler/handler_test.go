package activationhandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/device-activation-backend/activation"
	"github.com/ruteri/device-activation-backend/api"
	"github.com/ruteri/device-activation-backend/cryptoutils"
	"github.com/ruteri/device-activation-backend/devicestore"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/ruteri/device-activation-backend/registry"
	"github.com/ruteri/device-activation-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockActivator struct {
	mock.Mock
}

func (m *mockActivator) Activate(ctx context.Context, cfg activation.Config, req activation.Request) (*activation.Outcome, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*activation.Outcome), args.Error(1)
}

func (m *mockActivator) ActivatePreSharedKey(ctx context.Context, cfg activation.Config, req activation.PSKRequest) (*activation.Outcome, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*activation.Outcome), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, events []activation.Event) {
	m.Called(ctx, events)
}

func newTestServer(t *testing.T, activator Activator, dispatcher EventDispatcher) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(activator, dispatcher, activation.DefaultConfig(), logger).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestHandleActivate_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := devicestore.OpenInMemory(logger)
	require.NoError(t, err)
	require.NoError(t, store.CreateFactoryRecord(ctx, &interfaces.FactoryRecord{SerialNumber: "SN1", State: interfaces.StateReadyToActivate}))
	require.NoError(t, store.CreateFactoryRecord(ctx, &interfaces.FactoryRecord{SerialNumber: "SN2", IMEI: "352000", State: interfaces.StateProvisioned}))

	secret := []byte("qualifier-secret")
	secrets := storage.NewMemoryBackend()
	require.NoError(t, secrets.Store(ctx, "qualifier/default", secret))

	verifier, err := cryptoutils.NewQualifierVerifier("")
	require.NoError(t, err)

	registration := new(registry.MockRegistrationClient)
	registration.On("CreateClient", mock.Anything, "tok", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	tokens := new(registry.MockTokenSource)
	tokens.On("Token", mock.Anything).Return("tok", nil)

	orchestrator := activation.NewOrchestrator(store, secrets, verifier, activation.NewIssuer(registration, tokens, logger), logger)
	dispatcher := new(mockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return()

	server := newTestServer(t, orchestrator, dispatcher)
	client := NewClient(server.URL)

	qualifier := func(vin, serial string) string {
		q, err := verifier.ComputeQualifier("", cryptoutils.QualifierInput{VIN: vin, SerialNumber: serial}, secret)
		require.NoError(t, err)
		return q
	}

	resp, err := client.Activate(ctx, &api.ActivationRequest{VIN: "VIN1", SerialNumber: "SN1", Qualifier: qualifier("VIN1", "SN1"), ProductType: "tcu"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DeviceID)
	assert.NotEmpty(t, resp.Passcode)
	assert.False(t, resp.ProvisionedAlive)

	// lookup by IMEI, qualifier still bound to the stored serial number
	resp, err = client.Activate(ctx, &api.ActivationRequest{VIN: "VIN2", IMEI: "352000", Qualifier: qualifier("VIN2", "SN2"), ProductType: "tcu"})
	require.NoError(t, err)
	assert.True(t, resp.ProvisionedAlive)
	assert.Empty(t, resp.DeviceID)

	_, err = client.Activate(ctx, &api.ActivationRequest{VIN: "VIN1", SerialNumber: "SN1", Qualifier: qualifier("VIN9", "SN1"), ProductType: "tcu"})
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusPreconditionFailed, clientErr.StatusCode)
	assert.Equal(t, interfaces.KindPreconditionFailed.String(), clientErr.Response.Kind)

	dispatcher.AssertNumberOfCalls(t, "Dispatch", 2)
}

func TestHandleActivate_StatusMapping(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		status   int
		kind     string
		deviceID string
	}{
		{name: "validation", err: interfaces.ErrInvalidAAD, status: http.StatusBadRequest, kind: "validation_failed"},
		{name: "not found", err: interfaces.ErrFactoryRecordNotFound, status: http.StatusNotFound, kind: "resource_not_found"},
		{name: "precondition", err: interfaces.ErrAssociationIncomplete, status: http.StatusPreconditionFailed, kind: "precondition_failed"},
		{name: "duplicate", err: interfaces.ErrDuplicateActivation, status: http.StatusConflict, kind: "duplicate_activation"},
		{name: "data integrity", err: interfaces.ErrMultipleActivations, status: http.StatusInternalServerError, kind: "data_integrity"},
		{name: "technical", err: errors.New("db down"), status: http.StatusInternalServerError, kind: "technical"},
		{
			name:     "partial failure",
			err:      &interfaces.PartialFailureError{DeviceID: "HA00000001", Step: activation.StepCreateClient, Err: interfaces.ErrRegistrationFailed},
			status:   http.StatusBadGateway,
			kind:     "partial_failure",
			deviceID: "HA00000001",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			activator := new(mockActivator)
			activator.On("Activate", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err)
			server := newTestServer(t, activator, nil)

			_, err := NewClient(server.URL).Activate(context.Background(), &api.ActivationRequest{VIN: "V", SerialNumber: "S"})
			var clientErr *ClientError
			require.ErrorAs(t, err, &clientErr)
			assert.Equal(t, tc.status, clientErr.StatusCode)
			assert.Equal(t, tc.kind, clientErr.Response.Kind)
			assert.Equal(t, tc.deviceID, clientErr.Response.DeviceID)
			assert.NotContains(t, clientErr.Response.Message, "db down")
		})
	}
}

func TestHandleActivate_RejectionEventsDispatched(t *testing.T) {
	activator := new(mockActivator)
	rejected := activation.ActivationRejected{EventID: "ev-1"}
	activator.On("Activate", mock.Anything, mock.Anything, mock.Anything).
		Return(&activation.Outcome{Events: []activation.Event{rejected}}, interfaces.ErrInvalidDeviceState)
	dispatcher := new(mockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, []activation.Event{rejected}).Return()

	server := newTestServer(t, activator, dispatcher)
	_, err := NewClient(server.URL).Activate(context.Background(), &api.ActivationRequest{VIN: "V", SerialNumber: "S"})
	require.Error(t, err)
	dispatcher.AssertExpectations(t)
}

func TestHandleActivatePSK_BadBody(t *testing.T) {
	activator := new(mockActivator)
	server := newTestServer(t, activator, nil)

	resp, err := http.Post(server.URL+"/api/v1/devices/psk/activate", "application/json", strings.NewReader(`{"activationId": 7}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	activator.AssertNotCalled(t, "ActivatePreSharedKey", mock.Anything, mock.Anything, mock.Anything)
}
