package repository

import (
	"context"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	pkgkafka "RiskPulse/pkg/kafka"
)

// KafkaEventPublisher writes transaction events to the ingest topic, keyed
// by user_id so the hash balancer keeps one user's events on one partition.
// Per-partition ordering is what lets the aggregator apply a user's events
// sequentially without cross-instance coordination.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates the publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) drepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.TransactionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.UserID), e)
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, events []*models.TransactionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(e.UserID),
			Value: e,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
