package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/device-activation-backend/interfaces"
)

// DefaultActivationMessage is sent when no template is configured. %s is the device id.
const DefaultActivationMessage = "Your vehicle device %s has been activated."

// Notifier sends the one-time activation notification to a user.
type Notifier struct {
	profiles interfaces.ProfileLookup
	sms      interfaces.SMSSender
	template string
	log      *slog.Logger
}

func NewNotifier(profiles interfaces.ProfileLookup, sms interfaces.SMSSender, template string, log *slog.Logger) *Notifier {
	if template == "" {
		template = DefaultActivationMessage
	}
	return &Notifier{profiles: profiles, sms: sms, template: template, log: log}
}

// NotifyActivation looks up the user's profile and sends an SMS. A missing
// profile or phone number is logged and is not an error.
func (n *Notifier) NotifyActivation(ctx context.Context, userID, deviceID string) error {
	if userID == "" {
		n.log.Debug("no user linked to device, skipping notification", "deviceId", deviceID)
		return nil
	}

	profile, err := n.profiles.Profile(ctx, userID)
	if errors.Is(err, interfaces.ErrProfileNotFound) {
		n.log.Warn("user profile not found, skipping notification", "userId", userID, "deviceId", deviceID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("profile lookup failed: %w", err)
	}

	if profile.PhoneNumber == "" {
		n.log.Warn("user profile has no phone number, skipping notification", "userId", userID, "deviceId", deviceID)
		return nil
	}

	if err := n.sms.SendSMS(ctx, profile.PhoneNumber, fmt.Sprintf(n.template, deviceID)); err != nil {
		return fmt.Errorf("sms delivery failed: %w", err)
	}

	n.log.Info("activation notification sent", "userId", userID, "deviceId", deviceID)
	return nil
}
