package repository

import (
	"context"

	"RiskPulse/internal/domain/models"
)

// EventPublisher publishes transaction events to the partitioned log,
// keyed by user so all events for one user land on one partition.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.TransactionEvent) error
	PublishBatch(ctx context.Context, events []*models.TransactionEvent) error
	Close() error
}

// AuditLog records issued decisions. Writes are best-effort: an audit
// failure must never fail the decision path.
type AuditLog interface {
	Record(ctx context.Context, d *models.Decision) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics abstracts the domain counters so use cases stay free of the
// metrics backend.
type Metrics interface {
	RecordEventApplied(result string) // applied | duplicate | invalid
	RecordDecision(outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordFreshnessLag(seconds float64)
}
