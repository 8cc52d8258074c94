package window

import "time"

// Stats is the folded view of all live buckets in a counter.
type Stats struct {
	Count  int64
	Sum    float64
	Max    float64
	Amount Welford
}

// Avg returns Sum/Count, 0 when empty.
func (s Stats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

type bucket struct {
	count  int64
	sum    float64
	max    float64
	amount Welford
}

// Counter approximates a sliding count/sum/max over a fixed horizon using
// fixed-width buckets: O(1) amortized record, O(b) query. Events older than
// the horizon may still be recorded; they land in an already-evictable
// bucket and never inflate the current window.
type Counter struct {
	width   time.Duration
	horizon time.Duration
	buckets map[int64]*bucket
}

// NewCounter creates a counter for one horizon. Width must divide the
// horizon into a small constant number of buckets.
func NewCounter(horizon, width time.Duration) *Counter {
	if width <= 0 {
		width = time.Minute
	}
	if horizon < width {
		horizon = width
	}
	return &Counter{
		width:   width,
		horizon: horizon,
		buckets: make(map[int64]*bucket),
	}
}

// Record adds one event with the given amount to the bucket covering at.
func (c *Counter) Record(at time.Time, amount float64) {
	key := at.UnixMilli() / c.width.Milliseconds()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{}
		c.buckets[key] = b
	}
	b.count++
	b.sum += amount
	if b.count == 1 || amount > b.max {
		b.max = amount
	}
	b.amount.Add(amount)
}

// Query evicts buckets that ended before now-horizon and folds the rest.
func (c *Counter) Query(now time.Time) Stats {
	cutoff := now.Add(-c.horizon).UnixMilli()
	var out Stats
	for key, b := range c.buckets {
		end := (key + 1) * c.width.Milliseconds()
		if end < cutoff {
			delete(c.buckets, key)
			continue
		}
		out.Count += b.count
		out.Sum += b.sum
		if b.count > 0 && (out.Count == b.count || b.max > out.Max) {
			out.Max = b.max
		}
		out.Amount = out.Amount.Merge(b.amount)
	}
	return out
}

// Len returns the number of live buckets (for tests and memory accounting).
func (c *Counter) Len() int { return len(c.buckets) }
