package window

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCounterRecordAndQuery(t *testing.T) {
	c := NewCounter(5*time.Minute, time.Minute)

	c.Record(t0, 100)
	c.Record(t0.Add(30*time.Second), 50)
	c.Record(t0.Add(2*time.Minute), 200)

	s := c.Query(t0.Add(3 * time.Minute))
	if s.Count != 3 {
		t.Fatalf("count: got %d want 3", s.Count)
	}
	if s.Sum != 350 {
		t.Fatalf("sum: got %v want 350", s.Sum)
	}
	if s.Max != 200 {
		t.Fatalf("max: got %v want 200", s.Max)
	}
	if got := s.Avg(); got != 350.0/3 {
		t.Fatalf("avg: got %v", got)
	}
}

func TestCounterEviction(t *testing.T) {
	c := NewCounter(5*time.Minute, time.Minute)

	c.Record(t0, 10)
	c.Record(t0.Add(4*time.Minute), 20)

	// first bucket's end is t0+1m; past t0+6m it is outside the horizon
	s := c.Query(t0.Add(6*time.Minute + time.Second))
	if s.Count != 1 || s.Sum != 20 {
		t.Fatalf("expected only the fresh bucket, got count=%d sum=%v", s.Count, s.Sum)
	}
	if c.Len() != 1 {
		t.Fatalf("expected evicted bucket to be dropped, have %d", c.Len())
	}
}

func TestCounterStaleRecordIsNoop(t *testing.T) {
	c := NewCounter(24*time.Hour, time.Hour)
	now := t0.Add(30 * time.Hour)

	// older than the horizon at application time: recorded, then evicted on
	// the next query with no effect on the window
	c.Record(t0, 500)
	s := c.Query(now)
	if s.Count != 0 {
		t.Fatalf("stale event inflated window: count=%d", s.Count)
	}
	if c.Len() != 0 {
		t.Fatalf("stale bucket survived eviction")
	}
}

func TestCounterFutureBucketCountsUntilEvicted(t *testing.T) {
	c := NewCounter(5*time.Minute, time.Minute)

	// clock skew: event 2 minutes ahead of now
	c.Record(t0.Add(2*time.Minute), 42)

	if s := c.Query(t0); s.Count != 1 {
		t.Fatalf("future bucket should count until evicted, got %d", s.Count)
	}
	if s := c.Query(t0.Add(10 * time.Minute)); s.Count != 0 {
		t.Fatalf("future bucket should evict once out of horizon, got %d", s.Count)
	}
}

func TestCounterWindowVarianceTracksLiveBuckets(t *testing.T) {
	c := NewCounter(3*time.Minute, time.Minute)

	c.Record(t0, 10)
	c.Record(t0.Add(time.Minute), 10)
	c.Record(t0.Add(2*time.Minute), 1000)

	s := c.Query(t0.Add(2 * time.Minute))
	if s.Amount.Count() != 3 {
		t.Fatalf("welford samples: got %d want 3", s.Amount.Count())
	}

	// once the outlier's bucket expires, the variance drops with it
	s = c.Query(t0.Add(5*time.Minute + time.Second))
	if s.Amount.Count() != 1 {
		t.Fatalf("welford samples after eviction: got %d want 1", s.Amount.Count())
	}
	if v := s.Amount.Variance(); v != 0 {
		t.Fatalf("variance after eviction: got %v want 0", v)
	}
}
