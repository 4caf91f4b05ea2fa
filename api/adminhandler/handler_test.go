package adminhandler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
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

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, events []activation.Event) {
	m.Called(ctx, events)
}

func setupAdmin(t *testing.T) (*AdminClient, *registry.MockRegistrationClient, *mockDispatcher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := devicestore.OpenInMemory(logger)
	require.NoError(t, err)

	verifier, err := cryptoutils.NewQualifierVerifier("")
	require.NoError(t, err)

	registration := new(registry.MockRegistrationClient)
	tokens := new(registry.MockTokenSource)
	tokens.On("Token", mock.Anything).Return("tok", nil)

	orchestrator := activation.NewOrchestrator(store, storage.NewMemoryBackend(), verifier, activation.NewIssuer(registration, tokens, logger), logger)

	dispatcher := new(mockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return()

	r := chi.NewRouter()
	NewHandler(orchestrator, dispatcher, logger).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return NewAdminClient(server.URL), registration, dispatcher
}

func TestAdminWorkflow(t *testing.T) {
	ctx := context.Background()
	client, _, dispatcher := setupAdmin(t)

	created, err := client.RegisterFactoryRecord(ctx, &api.FactoryRecord{SerialNumber: "SN1", IMEI: "35001", DeviceType: "dongle"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, string(interfaces.StateProvisioned), created.State)

	record, err := client.MarkReady(ctx, &api.ReadinessRequest{SerialNumber: "SN1", UserID: "user-1", AssociationPending: true})
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.StateProvisioned), record.State)

	association, err := client.RecordAssociation(ctx, &api.AssociationRequest{SerialNumber: "SN1", VIN: "WVW1", TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.TransactionPending), association.TransactionStatus)

	require.NoError(t, client.UpdateTransactionStatus(ctx, "SN1", "Completed"))

	status, err := client.DeviceStatus(ctx, "SN1")
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.StateReadyToActivate), status.Factory.State)
	assert.Equal(t, "user-1", status.ReadinessUserID)
	assert.False(t, status.AssociationPending)
	require.NotNil(t, status.Association)
	assert.Equal(t, "Completed", status.Association.TransactionStatus)

	deactivated, err := client.Deactivate(ctx, &api.DeactivateRequest{SerialNumber: "SN1", Actor: "ops"})
	require.NoError(t, err)
	assert.True(t, deactivated.Found)
	assert.EqualValues(t, 1, deactivated.ReadinessDisabled)

	deactivated, err = client.Deactivate(ctx, &api.DeactivateRequest{SerialNumber: "SN1", Actor: "ops"})
	require.NoError(t, err)
	assert.True(t, deactivated.Found)
	assert.Zero(t, deactivated.ReadinessDisabled)

	status, err = client.DeviceStatus(ctx, "SN1")
	require.NoError(t, err)
	assert.Equal(t, string(interfaces.StateDeactivated), status.Factory.State)

	dispatcher.AssertNumberOfCalls(t, "Dispatch", 2)
}

func TestAdminErrors(t *testing.T) {
	ctx := context.Background()
	client, _, _ := setupAdmin(t)

	_, err := client.DeviceStatus(ctx, "missing")
	require.ErrorContains(t, err, "404")

	_, err = client.RegisterFactoryRecord(ctx, &api.FactoryRecord{VIN: "WVW1"})
	require.ErrorContains(t, err, "400")

	_, err = client.RegisterFactoryRecord(ctx, &api.FactoryRecord{SerialNumber: "SN2", State: "BROKEN"})
	require.ErrorContains(t, err, "400")

	require.ErrorContains(t, client.UpdateTransactionStatus(ctx, "missing", "Completed"), "412")

	deactivated, err := client.Deactivate(ctx, &api.DeactivateRequest{SerialNumber: "missing"})
	require.NoError(t, err)
	assert.False(t, deactivated.Found)
}
