package repository

import (
	"context"
	"errors"
	"time"

	"RiskPulse/internal/domain/models"
)

var (
	// ErrNotFound means the user has no stored record (or it expired).
	ErrNotFound = errors.New("feature store: record not found")
	// ErrConflict means a fresher writer already advanced the ordering
	// fields; the stale writer's compare-and-set lost.
	ErrConflict = errors.New("feature store: ordering conflict")
)

// FeatureStore is the durability and sharing boundary for per-user feature
// state. Any keyed store with per-field atomic increments, compare-and-set on
// the ordering fields, and per-key TTL satisfies it.
type FeatureStore interface {
	// Get returns the stored record for the user or ErrNotFound.
	Get(ctx context.Context, userID string) (*models.FeatureRecord, error)

	// ApplyDelta applies one atomic partial update. Increments always land;
	// the last-applied ordering pair is written only if it moves forward,
	// otherwise ErrConflict is returned.
	ApplyDelta(ctx context.Context, userID string, delta *models.FeatureDelta) error

	// TouchTTL refreshes the record expiry. Called on every successful write.
	TouchTTL(ctx context.Context, userID string, ttl time.Duration) error

	// Health pings the backing store.
	Health(ctx context.Context) error

	Close() error
}
