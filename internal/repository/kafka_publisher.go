package repository

import (
	"context"
	"fmt"

	"WhalePulse/internal/domain/models"
	domrepo "WhalePulse/internal/domain/repository"
	pkgkafka "WhalePulse/pkg/kafka"
)

// KafkaEventPublisher mirrors broadcast events onto the outbound events
// topic. Messages are keyed by asset so downstream consumers see per-asset
// order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e *models.Event) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(e.Asset), e); err != nil {
		return fmt.Errorf("publish event seq=%d: %w", e.Seq, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
