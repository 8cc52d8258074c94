package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
	"RiskPulse/internal/repository"
	"RiskPulse/internal/services/window"
	"RiskPulse/pkg/logger"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type countingMetrics struct {
	applied   map[string]int
	errors    map[string]int
	freshness int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{applied: make(map[string]int), errors: make(map[string]int)}
}

func (m *countingMetrics) RecordEventApplied(result string) { m.applied[result]++ }
func (m *countingMetrics) RecordDecision(string)            {}
func (m *countingMetrics) RecordError(kind string)          { m.errors[kind]++ }
func (m *countingMetrics) RecordLatency(string, float64)    {}
func (m *countingMetrics) RecordFreshnessLag(float64)       { m.freshness++ }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func eventJSON(t *testing.T, id string, ts time.Time, amount float64) []byte {
	t.Helper()
	e := models.TransactionEvent{
		EventID:    id,
		TS:         ts,
		UserID:     "u-1",
		Amount:     amount,
		Currency:   "USD",
		Country:    "US",
		DeviceID:   "dev-1",
		IP:         "10.0.0.1",
		MerchantID: "m-1",
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func testHandler(t *testing.T, m *countingMetrics) (*TransactionHandler, *repository.MemoryFeatureStore) {
	t.Helper()
	store := repository.NewMemoryFeatureStore()
	agg := window.NewAggregator(window.DefaultConfig())
	return NewTransactionHandler("transactions", agg, store, m, testLogger(t), 48*time.Hour), store
}

func TestHandleAppliesEvent(t *testing.T) {
	m := newCountingMetrics()
	h, store := testHandler(t, m)

	if err := h.Handle(context.Background(), eventJSON(t, "e-1", time.Now().UTC(), 120)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec, err := store.Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Txns5m != 1 || rec.EventsTotal != 1 || rec.AmountTotal != 120 {
		t.Fatalf("stored record: %+v", rec)
	}
	if rec.LastEventID != "e-1" {
		t.Fatalf("last_event_id: %q", rec.LastEventID)
	}
	if m.applied["applied"] != 1 || m.freshness != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestHandleDuplicateCommitsAsNoop(t *testing.T) {
	m := newCountingMetrics()
	h, store := testHandler(t, m)

	payload := eventJSON(t, "e-1", time.Now().UTC(), 50)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// redelivery must succeed (commit) without double-counting
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	rec, _ := store.Get(context.Background(), "u-1")
	if rec.EventsTotal != 1 || rec.Txns5m != 1 {
		t.Fatalf("duplicate double-counted: %+v", rec)
	}
	if m.applied["duplicate"] != 1 {
		t.Fatalf("duplicate not metered: %+v", m.applied)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	m := newCountingMetrics()
	h, _ := testHandler(t, m)

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if m.applied["invalid"] != 1 {
		t.Fatalf("invalid not metered: %+v", m.applied)
	}
}

func TestHandleInvalidEvent(t *testing.T) {
	m := newCountingMetrics()
	h, _ := testHandler(t, m)

	b, _ := json.Marshal(models.TransactionEvent{EventID: "e-1", TS: t0}) // no user_id
	if err := h.Handle(context.Background(), b); err == nil {
		t.Fatal("expected validation error")
	}
}

type failingStore struct {
	*repository.MemoryFeatureStore
	fail bool
}

func (s *failingStore) ApplyDelta(ctx context.Context, userID string, d *models.FeatureDelta) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.MemoryFeatureStore.ApplyDelta(ctx, userID, d)
}

func TestHandleStoreFailureForcesRedelivery(t *testing.T) {
	m := newCountingMetrics()
	store := &failingStore{MemoryFeatureStore: repository.NewMemoryFeatureStore(), fail: true}
	now := t0
	clock := func() time.Time { return now }
	agg := window.NewAggregator(window.DefaultConfig(), window.WithClock(clock))
	h := NewTransactionHandler("transactions", agg, store, m, testLogger(t), 48*time.Hour,
		WithHandlerClock(clock))

	payload := eventJSON(t, "e-1", t0, 75)
	if err := h.Handle(context.Background(), payload); err == nil {
		t.Fatal("store failure must propagate so the offset stays uncommitted")
	}
	if m.errors["store_write"] != 1 {
		t.Fatalf("store error not metered: %+v", m.errors)
	}

	// broker redelivers once the store is back; the duplicate path must
	// resync the window features even though the windows already hold the
	// event
	store.fail = false
	now = t0.Add(time.Minute)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	rec, err := store.Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("get after resync: %v", err)
	}
	if rec.Txns5m != 1 || rec.LastEventID != "e-1" {
		t.Fatalf("store did not converge: %+v", rec)
	}
}
