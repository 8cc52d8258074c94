package window

import (
	"fmt"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
)

func testEvent(id, userID string, ts time.Time, amount float64) *models.TransactionEvent {
	return &models.TransactionEvent{
		EventID:    id,
		TS:         ts,
		UserID:     userID,
		Amount:     amount,
		Currency:   "USD",
		Country:    "US",
		DeviceID:   "dev-1",
		IP:         "10.0.0.1",
		MerchantID: "m-1",
	}
}

func testAggregator(now *time.Time) *Aggregator {
	return NewAggregator(DefaultConfig(), WithClock(func() time.Time { return *now }))
}

func TestAggregatorApplyBuildsSnapshot(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	for i := 0; i < 3; i++ {
		now = t0.Add(time.Duration(i) * time.Minute)
		e := testEvent(fmt.Sprintf("e-%d", i), "u-1", now, float64(100+i))
		if _, applied := a.Apply(e); !applied {
			t.Fatalf("event %d not applied", i)
		}
	}

	snap, ok := a.Snapshot("u-1", now)
	if !ok {
		t.Fatal("expected state for u-1")
	}
	if snap.Txns5m != 3 || snap.Txns1h != 3 || snap.Txns24h != 3 {
		t.Fatalf("counts: got %d/%d/%d want 3/3/3", snap.Txns5m, snap.Txns1h, snap.Txns24h)
	}
	if snap.AvgAmount1h != 101 {
		t.Fatalf("avg_amount_1h: got %v want 101", snap.AvgAmount1h)
	}
	if snap.MaxAmount24h != 102 {
		t.Fatalf("max_amount_24h: got %v want 102", snap.MaxAmount24h)
	}
	if snap.MerchantVel1h != 3 {
		t.Fatalf("merchant_velocity_1h: got %d want 3", snap.MerchantVel1h)
	}
	if snap.LastEventID != "e-2" {
		t.Fatalf("last_event_id: got %q", snap.LastEventID)
	}
}

func TestAggregatorDuplicateEventIsNoop(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	e := testEvent("e-1", "u-1", t0, 50)
	if _, applied := a.Apply(e); !applied {
		t.Fatal("first delivery not applied")
	}
	before, _ := a.Snapshot("u-1", now)

	replay := testEvent("e-1", "u-1", t0, 50)
	if snap, applied := a.Apply(replay); applied || snap != nil {
		t.Fatal("replayed event must be a silent no-op")
	}

	after, _ := a.Snapshot("u-1", now)
	if after.Txns5m != before.Txns5m || after.EventsTotal != before.EventsTotal {
		t.Fatalf("replay mutated state: before=%+v after=%+v", before, after)
	}
}

func TestAggregatorDuplicateInRingIsNoop(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	a.Apply(testEvent("e-1", "u-1", t0, 50))
	a.Apply(testEvent("e-2", "u-1", t0.Add(time.Second), 60))

	// e-1 is no longer last_event_id but still in the replay ring
	if _, applied := a.Apply(testEvent("e-1", "u-1", t0, 50)); applied {
		t.Fatal("ring-remembered event must not reapply")
	}
	snap, _ := a.Snapshot("u-1", now)
	if snap.Txns5m != 2 {
		t.Fatalf("txns_last_5m: got %d want 2", snap.Txns5m)
	}
}

func TestAggregatorDeviceChurn(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	// ten distinct devices inside four minutes
	for i := 0; i < 10; i++ {
		now = t0.Add(time.Duration(i*24) * time.Second)
		e := testEvent(fmt.Sprintf("e-%d", i), "u-1", now, 10)
		e.DeviceID = fmt.Sprintf("dev-%d", i)
		a.Apply(e)
	}

	snap, _ := a.Snapshot("u-1", now)
	if snap.DeviceChurn5m != 10 {
		t.Fatalf("device_churn_5m: got %d want 10", snap.DeviceChurn5m)
	}
	if snap.DeviceChurn24h != 10 {
		t.Fatalf("device_churn_24h: got %d want 10", snap.DeviceChurn24h)
	}
}

func TestAggregatorClampsFutureTimestamps(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	e := testEvent("e-1", "u-1", t0.Add(2*time.Hour), 75)
	a.Apply(e)

	snap, _ := a.Snapshot("u-1", now)
	if snap.Txns5m != 1 {
		t.Fatalf("clamped event missing from 5m window: got %d", snap.Txns5m)
	}
	if snap.LastEventTS.After(t0) {
		t.Fatalf("last_event_ts not clamped: %v", snap.LastEventTS)
	}
}

func TestAggregatorLateEventInsideHorizon(t *testing.T) {
	now := t0.Add(time.Hour)
	a := testAggregator(&now)

	a.Apply(testEvent("e-now", "u-1", now, 100))
	// an hour late: outside 5m, inside 24h
	a.Apply(testEvent("e-late", "u-1", t0, 40))

	snap, _ := a.Snapshot("u-1", now)
	if snap.Txns5m != 1 {
		t.Fatalf("txns_last_5m: got %d want 1", snap.Txns5m)
	}
	if snap.Txns24h != 2 {
		t.Fatalf("txns_last_24h: got %d want 2", snap.Txns24h)
	}
	if snap.LastEventTS != now {
		t.Fatalf("late event moved last_event_ts back: %v", snap.LastEventTS)
	}
}

func TestAggregatorZScore(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	amounts := []float64{10, 12, 11, 9, 10, 500}
	for i, amt := range amounts {
		now = t0.Add(time.Duration(i) * time.Minute)
		a.Apply(testEvent(fmt.Sprintf("e-%d", i), "u-1", now, amt))
	}

	snap, _ := a.Snapshot("u-1", now)
	if !snap.ZScoreValid {
		t.Fatal("z-score should be valid with 6 samples")
	}
	if snap.AmountZScore < 2 {
		t.Fatalf("outlier z-score too small: %v", snap.AmountZScore)
	}
}

func TestAggregatorSweepIdle(t *testing.T) {
	now := t0
	a := testAggregator(&now)

	a.Apply(testEvent("e-1", "u-1", t0, 10))
	now = t0.Add(time.Hour)
	a.Apply(testEvent("e-2", "u-2", now, 10))

	if n := a.SweepIdle(t0.Add(49 * time.Hour)); n != 1 {
		t.Fatalf("sweep evicted %d want 1", n)
	}
	if _, ok := a.Snapshot("u-1", now); ok {
		t.Fatal("u-1 should be swept")
	}
	if _, ok := a.Snapshot("u-2", now); !ok {
		t.Fatal("u-2 should survive")
	}
}
