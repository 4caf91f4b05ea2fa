package events

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultExchange is the AMQP exchange events are published to when none is configured.
const DefaultExchange = "device-activation-events"

// NewGoChannelPubSub returns an in-process publisher and subscriber pair.
func NewGoChannelPubSub(log *slog.Logger) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewLoggerAdapter(log.With("subsystem", "gochannel")))
	return pubSub, pubSub
}

// NewAMQPPublisher returns a publisher that sends every topic to a durable
// topic exchange, using the topic as routing key.
func NewAMQPPublisher(amqpURL, exchange, serviceID string, log *slog.Logger) (message.Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	amqpConfig := amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicNameWithSuffix(serviceID))
	amqpConfig.Exchange = amqp.ExchangeConfig{
		GenerateName: func(topic string) string {
			return exchange
		},
		Type:    "topic",
		Durable: true,
	}
	amqpConfig.Publish = amqp.PublishConfig{
		GenerateRoutingKey: func(topic string) string {
			return topic
		},
	}

	publisher, err := amqp.NewPublisher(amqpConfig, NewLoggerAdapter(log.With("subsystem", "amqp-publisher")))
	if err != nil {
		return nil, fmt.Errorf("could not create publisher: %w", err)
	}
	return publisher, nil
}
