package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStoreGetAbsent(t *testing.T) {
	s := NewMemoryFeatureStore()
	if _, err := s.Get(context.Background(), "nobody"); !errors.Is(err, drepo.ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestMemoryStoreApplyAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeatureStore()

	err := s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{
		Inc: map[string]float64{
			models.FieldEventsTotal: 1,
			models.FieldAmountTotal: 120.5,
		},
		Set: map[string]string{
			models.FieldTxns5m: "3",
		},
		LastEventID: "e-1",
		LastEventTS: t0,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	rec, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.EventsTotal != 1 || rec.AmountTotal != 120.5 {
		t.Fatalf("totals: got %d/%v", rec.EventsTotal, rec.AmountTotal)
	}
	if rec.Txns5m != 3 {
		t.Fatalf("txns_last_5m: got %d want 3", rec.Txns5m)
	}
	if rec.LastEventID != "e-1" || !rec.LastEventTS.Equal(t0) {
		t.Fatalf("ordering pair: %q %v", rec.LastEventID, rec.LastEventTS)
	}
}

func TestMemoryStoreLargeCounterRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeatureStore()

	err := s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{
		Inc: map[string]float64{models.FieldEventsTotal: 1_000_000},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{
		Inc: map[string]float64{models.FieldEventsTotal: 1},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rec, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.EventsTotal != 1_000_001 {
		t.Fatalf("events_total: got %d want 1000001", rec.EventsTotal)
	}
}

func TestMemoryStoreStaleWriterConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeatureStore()

	fresh := &models.FeatureDelta{
		Inc:         map[string]float64{models.FieldEventsTotal: 1},
		LastEventID: "e-2",
		LastEventTS: t0.Add(time.Minute),
	}
	if err := s.ApplyDelta(ctx, "u-1", fresh); err != nil {
		t.Fatalf("fresh apply: %v", err)
	}

	stale := &models.FeatureDelta{
		Inc:         map[string]float64{models.FieldEventsTotal: 1},
		LastEventID: "e-1",
		LastEventTS: t0,
	}
	if err := s.ApplyDelta(ctx, "u-1", stale); !errors.Is(err, drepo.ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}

	// increments from the losing writer still land; ordering keeps the
	// fresher pair
	rec, _ := s.Get(ctx, "u-1")
	if rec.EventsTotal != 2 {
		t.Fatalf("events_total: got %d want 2", rec.EventsTotal)
	}
	if rec.LastEventID != "e-2" {
		t.Fatalf("last_event_id rolled back to %q", rec.LastEventID)
	}
}

func TestMemoryStoreEqualTimestampWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeatureStore()

	s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{LastEventID: "e-1", LastEventTS: t0})
	if err := s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{LastEventID: "e-2", LastEventTS: t0}); err != nil {
		t.Fatalf("equal-ts writer must win: %v", err)
	}
	rec, _ := s.Get(ctx, "u-1")
	if rec.LastEventID != "e-2" {
		t.Fatalf("last_event_id: got %q want e-2", rec.LastEventID)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := t0
	s := NewMemoryFeatureStore(WithStoreClock(func() time.Time { return now }))

	s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{
		Inc:         map[string]float64{models.FieldEventsTotal: 1},
		LastEventID: "e-1",
		LastEventTS: t0,
	})
	if err := s.TouchTTL(ctx, "u-1", 48*time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}

	if _, err := s.Get(ctx, "u-1"); err != nil {
		t.Fatalf("live record: %v", err)
	}

	now = t0.Add(49 * time.Hour)
	if _, err := s.Get(ctx, "u-1"); !errors.Is(err, drepo.ErrNotFound) {
		t.Fatalf("expired record: got %v want ErrNotFound", err)
	}
}

func TestMemoryStoreRoundTripsFullRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeatureStore()

	want := &models.FeatureRecord{
		UserID:          "u-1",
		Txns5m:          2,
		Txns1h:          7,
		Txns24h:         30,
		AvgAmount1h:     55.25,
		MaxAmount24h:    900,
		AmountMean24h:   72.5,
		AmountStdDev24h: 14.1,
		AmountZScore:    2.5,
		ZScoreValid:     true,
		DeviceChurn5m:   1,
		DeviceChurn24h:  4,
		IPChurn24h:      2,
		CountryChurn24h: 1,
		MerchantVel1h:   3,
		LastEventID:     "e-9",
		LastEventTS:     t0,
		UpdatedAt:       t0,
	}
	want.Passthrough[0] = -1.25
	want.Passthrough[models.PassthroughLen-1] = 0.5

	if err := s.ApplyDelta(ctx, "u-1", &models.FeatureDelta{Set: want.ToFields()}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Txns24h != want.Txns24h || got.AmountStdDev24h != want.AmountStdDev24h ||
		!got.ZScoreValid || got.Passthrough != want.Passthrough {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.LastEventTS.Equal(want.LastEventTS) {
		t.Fatalf("last_event_ts: got %v want %v", got.LastEventTS, want.LastEventTS)
	}
}
