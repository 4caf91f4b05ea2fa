package registry

import (
	"context"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistrationClient mocks the RegistrationClient interface
type MockRegistrationClient struct {
	mock.Mock
}

func (m *MockRegistrationClient) CreateClient(ctx context.Context, token, deviceID, passcode, deviceType string) error {
	args := m.Called(ctx, token, deviceID, passcode, deviceType)
	return args.Error(0)
}

func (m *MockRegistrationClient) UpdateClient(ctx context.Context, token, deviceID, passcode, deviceType string, status interfaces.ClientStatus) error {
	args := m.Called(ctx, token, deviceID, passcode, deviceType, status)
	return args.Error(0)
}

func (m *MockRegistrationClient) DeleteClient(ctx context.Context, token, deviceID string) error {
	args := m.Called(ctx, token, deviceID)
	return args.Error(0)
}

// MockTokenSource mocks the TokenSource interface
type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
