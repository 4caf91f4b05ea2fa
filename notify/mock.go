package notify

import (
	"context"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockProfileLookup mocks the ProfileLookup interface
type MockProfileLookup struct {
	mock.Mock
}

func (m *MockProfileLookup) Profile(ctx context.Context, userID string) (*interfaces.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.UserProfile), args.Error(1)
}

// MockSMSSender mocks the SMSSender interface
type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) SendSMS(ctx context.Context, phoneNumber, message string) error {
	args := m.Called(ctx, phoneNumber, message)
	return args.Error(0)
}
