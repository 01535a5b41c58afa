package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/pkg/events"
)

type fakeDelivery struct {
	mu  sync.Mutex
	got map[string][][]byte
}

func (d *fakeDelivery) SendToSession(sessionID string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got[sessionID] = append(d.got[sessionID], data)
}

func (d *fakeDelivery) count(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.got[sessionID])
}

func TestEventBus_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	delivery := &fakeDelivery{got: map[string][][]byte{}}
	forward := &recordingPublisher{}
	consumer := NewConsumerService(bus, "explorer_events", delivery, forward, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	pub := NewPublisherService("explorer_events", bus)
	require.NoError(t, pub.Publish(ctx, events.New(events.TypeTurnCompleted, "s1", map[string]interface{}{"attempts": 1})))
	require.NoError(t, pub.Publish(ctx, events.New(events.TypeTurnTransition, "s2", nil)))

	assert.Eventually(t, func() bool {
		return delivery.count("s1") == 1 && delivery.count("s2") == 1
	}, time.Second, 10*time.Millisecond)

	delivery.mu.Lock()
	e, err := events.Unmarshal(delivery.got["s1"][0])
	delivery.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, events.TypeTurnCompleted, e.EventType())
	assert.Equal(t, float64(1), e.Payload()["attempts"])

	assert.Eventually(t, func() bool { return len(forward.types()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestEventBus_BadPayloadIsAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	delivery := &fakeDelivery{got: map[string][][]byte{}}
	require.NoError(t, NewConsumerService(bus, "t", delivery, nil, logger.NewNopLogger()).Consume(ctx))

	require.NoError(t, bus.Publish("t", newRawMessage([]byte("not json"))))
	require.NoError(t, NewPublisherService("t", bus).Publish(ctx, events.New(events.TypeSessionDeleted, "s", nil)))

	assert.Eventually(t, func() bool { return delivery.count("s") == 1 }, time.Second, 10*time.Millisecond)
}

func newRawMessage(payload []byte) *message.Message {
	return message.NewMessage(watermill.NewUUID(), payload)
}
