package interfaces

import (
	"context"
	"errors"
	"time"
)

// ClientStatus is the status of a registered client at the credential-registration service.
type ClientStatus string

const (
	ClientActive   ClientStatus = "ACTIVE"
	ClientDisabled ClientStatus = "DISABLED"
)

// TokenSource fetches an access token for the credential-registration service.
// Implementations must return a fresh token on every call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RegistrationClient manages device clients at the external
// credential-registration service.
type RegistrationClient interface {
	CreateClient(ctx context.Context, token, deviceID, passcode, deviceType string) error
	UpdateClient(ctx context.Context, token, deviceID, passcode, deviceType string, status ClientStatus) error
	DeleteClient(ctx context.Context, token, deviceID string) error
}

// ErrProfileNotFound is returned by ProfileLookup when the user has no profile.
var ErrProfileNotFound = errors.New("user profile not found")

// UserProfile is the subset of a user profile needed for notifications.
type UserProfile struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	Locale      string `json:"locale,omitempty"`
}

// ProfileLookup resolves user profiles.
type ProfileLookup interface {
	Profile(ctx context.Context, userID string) (*UserProfile, error)
}

// SMSSender delivers one-time notifications.
type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// OutboundEvent is a typed event handed to an EventPublisher.
type OutboundEvent struct {
	ID         string
	Type       string
	Source     string
	Subject    string
	DedupKey   string
	Time       time.Time
	Data       any
	Extensions map[string]string
}

// EventPublisher publishes events to a topic. Publish failures are never
// escalated by callers.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event OutboundEvent) error
}
