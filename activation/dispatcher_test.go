package activation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ruteri/device-activation-backend/events"
	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyActivation(ctx context.Context, userID, deviceID string) error {
	args := m.Called(ctx, userID, deviceID)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, ev interfaces.OutboundEvent) error {
	args := m.Called(ctx, topic, ev)
	return args.Error(0)
}

func TestDispatcherNotifiesFirstActivationOnly(t *testing.T) {
	notifier := new(mockNotifier)
	notifier.On("NotifyActivation", mock.Anything, "user-1", "HA00000001").Return(nil)

	d := NewDispatcher(DispatcherConfig{Source: "test"}, notifier, nil, testLogger())
	d.Dispatch(context.Background(), []Event{
		DeviceActivated{DeviceID: "HA00000001", UserID: "user-1", FirstActivation: true},
		DeviceActivated{DeviceID: "HA00000001", UserID: "user-1"},
	})

	notifier.AssertNumberOfCalls(t, "NotifyActivation", 1)
}

func TestDispatcherPublishes(t *testing.T) {
	publisher := new(mockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier := new(mockNotifier)
	notifier.On("NotifyActivation", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sms down"))

	d := NewDispatcher(DispatcherConfig{Source: "activation", LifecycleTopic: "device.lifecycle"}, notifier, publisher, testLogger())
	d.Dispatch(context.Background(), []Event{
		DeviceActivated{DeviceID: "HA00000002", FirstActivation: true},
		DeviceActivated{DeviceID: "HA00000002", TypeChanged: true},
		ActivationRejected{EventID: "ev-1", Topic: "device.rejected", DedupKey: "dk", Device: DeviceSnapshot{SerialNumber: "SN1"}},
	})

	publisher.AssertNumberOfCalls(t, "Publish", 3)

	publisher.AssertCalled(t, "Publish", mock.Anything, "device.lifecycle", mock.MatchedBy(func(ev interfaces.OutboundEvent) bool {
		return ev.Type == TypeDeviceActivated && ev.Extensions["typeChanged"] == "true" && ev.Source == "activation"
	}))
	publisher.AssertCalled(t, "Publish", mock.Anything, "device.rejected", mock.MatchedBy(func(ev interfaces.OutboundEvent) bool {
		return ev.ID == "ev-1" && ev.DedupKey == "dk" && ev.Subject == "SN1"
	}))
}

func TestDispatcherWithCloudEvents(t *testing.T) {
	log := testLogger()
	pub, sub := events.NewGoChannelPubSub(log)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := sub.Subscribe(ctx, "device.rejected")
	require.NoError(t, err)

	publisher := events.NewCloudEventPublisher(pub, "activation", log)
	d := NewDispatcher(DispatcherConfig{Source: "activation"}, nil, publisher, log)

	cfg := DefaultConfig()
	cfg.InvalidStateTopic = "device.rejected"
	cfg.InvalidStateEventTypes = []string{"dongle"}

	record := &interfaces.FactoryRecord{SerialNumber: "SN9", DeviceType: "dongle", State: interfaces.StateFaulty, Faulty: true}
	o := &Orchestrator{log: log, now: time.Now}
	outcome, err := o.reject(cfg, record, "dongle", log)
	require.ErrorIs(t, err, interfaces.ErrInvalidDeviceState)

	d.Dispatch(ctx, outcome.Events)

	var msg *message.Message
	select {
	case msg = <-messages:
	case <-ctx.Done():
		t.Fatal("no event received")
	}
	msg.Ack()

	require.Equal(t, rejectionDedupKey(record), msg.Metadata.Get(events.DedupKeyMetadata))

	ce, err := events.ParseCloudEvent(msg.Payload)
	require.NoError(t, err)
	require.Equal(t, TypeActivationRejected, ce.Type())

	var data ActivationRejected
	require.NoError(t, json.Unmarshal(ce.Data(), &data))
	require.True(t, data.Device.Faulty)
	require.Equal(t, "SN9", data.Device.SerialNumber)
}
