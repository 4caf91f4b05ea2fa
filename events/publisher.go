package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// DedupKeyMetadata is the message metadata key carrying the deduplication key.
const DedupKeyMetadata = "dedupKey"

// CloudEventPublisher implements interfaces.EventPublisher by wrapping
// events in CloudEvents 1.0 JSON envelopes and publishing them with watermill.
type CloudEventPublisher struct {
	publisher     message.Publisher
	defaultSource string
	log           *slog.Logger
}

var _ interfaces.EventPublisher = (*CloudEventPublisher)(nil)

func NewCloudEventPublisher(publisher message.Publisher, defaultSource string, log *slog.Logger) *CloudEventPublisher {
	return &CloudEventPublisher{
		publisher:     publisher,
		defaultSource: defaultSource,
		log:           log,
	}
}

func (p *CloudEventPublisher) Publish(ctx context.Context, topic string, ev interfaces.OutboundEvent) error {
	ce, err := BuildCloudEvent(ev, p.defaultSource)
	if err != nil {
		return err
	}

	eventBytes, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("error while serializing event: %w", err)
	}

	msg := message.NewMessage(ce.ID(), eventBytes)
	msg.SetContext(ctx)
	if ev.DedupKey != "" {
		msg.Metadata.Set(DedupKeyMetadata, ev.DedupKey)
	}

	p.log.Debug("publishing event", "topic", topic, "type", ce.Type(), "id", ce.ID())

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("could not publish event to %s: %w", topic, err)
	}
	return nil
}

// BuildCloudEvent converts an outbound event into a CloudEvent. Missing ID
// and time are generated. Extension names are lowercased and stripped of
// characters CloudEvents does not allow.
func BuildCloudEvent(ev interfaces.OutboundEvent, defaultSource string) (event.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion("1.0")

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	ce.SetID(id)

	source := ev.Source
	if source == "" {
		source = defaultSource
	}
	ce.SetSource(source)
	ce.SetType(ev.Type)

	if ev.Subject != "" {
		ce.SetSubject(ev.Subject)
	}

	eventTime := ev.Time
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	ce.SetTime(eventTime)

	if ev.DedupKey != "" {
		ce.SetExtension("dedupkey", ev.DedupKey)
	}
	for name, value := range ev.Extensions {
		ce.SetExtension(extensionName(name), value)
	}

	if err := ce.SetData(cloudevents.ApplicationJSON, ev.Data); err != nil {
		return ce, fmt.Errorf("could not encode event data: %w", err)
	}

	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid event: %w", err)
	}
	return ce, nil
}

func extensionName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseCloudEvent decodes a message payload produced by CloudEventPublisher.
func ParseCloudEvent(payload []byte) (*event.Event, error) {
	var ce cloudevents.Event
	if err := json.Unmarshal(payload, &ce); err != nil {
		return nil, fmt.Errorf("could not parse cloud event: %w", err)
	}
	return &ce, nil
}
