package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
)

// MemoryFeatureStore is an in-process store with the same delta semantics
// as the Redis implementation: commutative increments, gauge sets, and a
// freshness-guarded ordering pair. Backs tests and single-node runs.
type MemoryFeatureStore struct {
	mu      sync.Mutex
	records map[string]map[string]string
	expiry  map[string]time.Time

	clock func() time.Time
}

// MemoryStoreOption configures a MemoryFeatureStore.
type MemoryStoreOption func(*MemoryFeatureStore)

// WithStoreClock overrides the wall clock (tests).
func WithStoreClock(fn func() time.Time) MemoryStoreOption {
	return func(s *MemoryFeatureStore) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// NewMemoryFeatureStore creates an empty store.
func NewMemoryFeatureStore(opts ...MemoryStoreOption) *MemoryFeatureStore {
	s := &MemoryFeatureStore{
		records: make(map[string]map[string]string),
		expiry:  make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryFeatureStore) Get(ctx context.Context, userID string) (*models.FeatureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.expiry[userID]; ok && s.clock().After(exp) {
		delete(s.records, userID)
		delete(s.expiry, userID)
	}
	fields, ok := s.records[userID]
	if !ok {
		return nil, drepo.ErrNotFound
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return models.FeatureRecordFromFields(userID, copied)
}

func (s *MemoryFeatureStore) ApplyDelta(ctx context.Context, userID string, d *models.FeatureDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.records[userID]
	if !ok {
		fields = make(map[string]string)
		s.records[userID] = fields
	}

	// 'f' formatting: 'g' switches to exponent form past 1e6, which the
	// integer counter fields would fail to parse back.
	for field, inc := range d.Inc {
		cur, _ := strconv.ParseFloat(fields[field], 64)
		fields[field] = strconv.FormatFloat(cur+inc, 'f', -1, 64)
	}
	for field, v := range d.Set {
		fields[field] = v
	}

	if d.LastEventID == "" {
		return nil
	}
	incoming := d.LastEventTS.UnixMilli()
	if stored, err := strconv.ParseInt(fields[models.FieldLastEventTS], 10, 64); err == nil && incoming < stored {
		return drepo.ErrConflict
	}
	fields[models.FieldLastEventTS] = strconv.FormatInt(incoming, 10)
	fields[models.FieldLastEventID] = d.LastEventID
	return nil
}

func (s *MemoryFeatureStore) TouchTTL(ctx context.Context, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry[userID] = s.clock().Add(ttl)
	return nil
}

func (s *MemoryFeatureStore) Health(ctx context.Context) error { return nil }

func (s *MemoryFeatureStore) Close() error { return nil }

var _ drepo.FeatureStore = (*MemoryFeatureStore)(nil)
