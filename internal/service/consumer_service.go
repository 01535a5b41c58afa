package service

import (
	"context"

	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// SessionDelivery pushes a raw event to the live clients of a session.
type SessionDelivery interface {
	SendToSession(sessionID string, data []byte)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	delivery   SessionDelivery
	forward    events.Publisher
	logger     logger.ILogger
}

// NewConsumerService drains the in-process bus. Every event goes to the
// websocket clients of its session and, when forward is set, to the external
// stream.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	delivery SessionDelivery,
	forward events.Publisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		delivery:   delivery,
		forward:    forward,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("Consumer", "Failed to unmarshal event", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if cs.delivery != nil && event.SessionID() != "" {
		cs.delivery.SendToSession(event.SessionID(), msg.Payload)
	}

	if cs.forward != nil {
		if err := cs.forward.Publish(ctx, event); err != nil {
			cs.logger.Warn("Consumer", "Failed to forward event", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}

	msg.Ack()
}
