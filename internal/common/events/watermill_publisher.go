package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WatermillPublisher implements Publisher over a watermill
// message.Publisher (Redis streams in production).
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *zap.Logger
}

// Compile-time interface compliance check
var _ Publisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new watermill-backed event publisher.
func NewWatermillPublisher(publisher message.Publisher, logger *zap.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishValidationFailed publishes a validation-failure event.
func (p *WatermillPublisher) PublishValidationFailed(_ context.Context, event ValidationFailedEvent) {
	p.publish(TopicValidationFailed, event)
}

// PublishUser publishes a user lifecycle event to the given topic.
func (p *WatermillPublisher) PublishUser(_ context.Context, topic string, event UserEvent) {
	p.publish(topic, event)
}

func (p *WatermillPublisher) publish(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
