package activation

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/ruteri/device-activation-backend/metrics"
)

// ActivationNotifier sends the one-time first activation notification.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, userID, deviceID string) error
}

// DispatcherConfig selects where lifecycle events are published. An empty
// LifecycleTopic disables publishing everything except rejections, which
// carry their own topic.
type DispatcherConfig struct {
	Source         string
	LifecycleTopic string
}

// Dispatcher delivers domain events to the notification and event
// collaborators. Delivery failures are logged and counted, never returned.
type Dispatcher struct {
	cfg       DispatcherConfig
	notifier  ActivationNotifier
	publisher interfaces.EventPublisher
	log       *slog.Logger
}

// NewDispatcher creates a Dispatcher. notifier and publisher may be nil.
func NewDispatcher(cfg DispatcherConfig, notifier ActivationNotifier, publisher interfaces.EventPublisher, log *slog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, notifier: notifier, publisher: publisher, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case DeviceActivated:
			d.deviceActivated(ctx, e)
		case ActivationRejected:
			d.publish(ctx, e.Topic, interfaces.OutboundEvent{
				ID:       e.EventID,
				Type:     e.EventType(),
				Subject:  e.Device.SerialNumber,
				DedupKey: e.DedupKey,
				Time:     e.At,
				Data:     e,
			})
		case DeviceProvisionedAlive:
			d.publishLifecycle(ctx, e.SerialNumber, e, nil)
		case DeviceDeactivated:
			d.publishLifecycle(ctx, e.SerialNumber, e, nil)
		default:
			d.log.Warn("unknown event type", "eventType", ev.EventType())
		}
	}
}

func (d *Dispatcher) deviceActivated(ctx context.Context, e DeviceActivated) {
	if e.FirstActivation && d.notifier != nil {
		if err := d.notifier.NotifyActivation(ctx, e.UserID, e.DeviceID); err != nil {
			metrics.RecordExternalFailure("notification")
			d.log.Warn("activation notification failed", "deviceId", e.DeviceID, "userId", e.UserID, "err", err)
		}
	}

	var extensions map[string]string
	if e.TypeChanged {
		extensions = map[string]string{"typeChanged": strconv.FormatBool(true)}
	}
	d.publishLifecycle(ctx, e.DeviceID, e, extensions)
}

func (d *Dispatcher) publishLifecycle(ctx context.Context, subject string, ev Event, extensions map[string]string) {
	if d.cfg.LifecycleTopic == "" {
		return
	}
	d.publish(ctx, d.cfg.LifecycleTopic, interfaces.OutboundEvent{
		ID:         uuid.NewString(),
		Type:       ev.EventType(),
		Subject:    subject,
		Data:       ev,
		Extensions: extensions,
	})
}

func (d *Dispatcher) publish(ctx context.Context, topic string, ev interfaces.OutboundEvent) {
	if d.publisher == nil {
		return
	}
	if ev.Source == "" {
		ev.Source = d.cfg.Source
	}
	if err := d.publisher.Publish(ctx, topic, ev); err != nil {
		metrics.RecordExternalFailure("events")
		d.log.Warn("event publish failed", "topic", topic, "eventType", ev.Type, "eventId", ev.ID, "err", err)
	}
}
