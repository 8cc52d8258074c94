package window

import "time"

// RecencySet tracks distinct values seen within a horizon, storing the last
// seen timestamp per value. The materialized set is capped to bound memory;
// distinct values rejected by the cap are tallied in a bucketed overflow
// counter so the full-horizon churn count stays exact while the burst is
// inside the horizon and decays with it afterwards. Pruning is lazy, on read.
type RecencySet struct {
	horizon  time.Duration
	cap      int
	entries  map[string]time.Time
	overflow *Counter
}

// NewRecencySet creates a set for one horizon with the given cap.
func NewRecencySet(horizon time.Duration, cap int) *RecencySet {
	if cap <= 0 {
		cap = 64
	}
	width := horizon / 24
	if width < time.Minute {
		width = time.Minute
	}
	return &RecencySet{
		horizon:  horizon,
		cap:      cap,
		entries:  make(map[string]time.Time, cap),
		overflow: NewCounter(horizon, width),
	}
}

// Insert records that value was seen at the given time.
func (s *RecencySet) Insert(value string, at time.Time) {
	if value == "" {
		return
	}
	if prev, ok := s.entries[value]; ok {
		if at.After(prev) {
			s.entries[value] = at
		}
		return
	}
	if len(s.entries) >= s.cap {
		s.prune(at)
	}
	if len(s.entries) >= s.cap {
		s.overflow.Record(at, 1)
		return
	}
	s.entries[value] = at
}

// Distinct counts values seen within the given sub-window ending at now.
// Overflowed values carry only a bucket timestamp, so they contribute only
// to the full-horizon count — the small cardinality error the cap trades
// for bounded memory.
func (s *RecencySet) Distinct(now time.Time, within time.Duration) int64 {
	s.prune(now)
	if within <= 0 || within > s.horizon {
		within = s.horizon
	}
	cutoff := now.Add(-within)
	var n int64
	for _, ts := range s.entries {
		if !ts.Before(cutoff) {
			n++
		}
	}
	if within == s.horizon {
		n += s.overflow.Query(now).Count
	}
	return n
}

func (s *RecencySet) prune(now time.Time) {
	cutoff := now.Add(-s.horizon)
	for v, ts := range s.entries {
		if ts.Before(cutoff) {
			delete(s.entries, v)
		}
	}
}

// KeyedCounter maintains one sliding Counter per key, capped by evicting the
// least recently seen key. Backs the same-merchant velocity feature.
type KeyedCounter struct {
	horizon  time.Duration
	width    time.Duration
	cap      int
	counters map[string]*Counter
	lastSeen map[string]time.Time
}

// NewKeyedCounter creates a keyed counter family.
func NewKeyedCounter(horizon, width time.Duration, cap int) *KeyedCounter {
	if cap <= 0 {
		cap = 64
	}
	return &KeyedCounter{
		horizon:  horizon,
		width:    width,
		cap:      cap,
		counters: make(map[string]*Counter, cap),
		lastSeen: make(map[string]time.Time, cap),
	}
}

// Record adds one event for key at the given time.
func (k *KeyedCounter) Record(key string, at time.Time) {
	if key == "" {
		return
	}
	c, ok := k.counters[key]
	if !ok {
		if len(k.counters) >= k.cap {
			k.evictOldest()
		}
		c = NewCounter(k.horizon, k.width)
		k.counters[key] = c
	}
	c.Record(at, 1)
	if prev, seen := k.lastSeen[key]; !seen || at.After(prev) {
		k.lastSeen[key] = at
	}
}

// Query returns the sliding count for one key.
func (k *KeyedCounter) Query(key string, now time.Time) int64 {
	c, ok := k.counters[key]
	if !ok {
		return 0
	}
	return c.Query(now).Count
}

func (k *KeyedCounter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, ts := range k.lastSeen {
		if first || ts.Before(oldest) {
			oldest = ts
			oldestKey = key
			first = false
		}
	}
	if oldestKey != "" {
		delete(k.counters, oldestKey)
		delete(k.lastSeen, oldestKey)
	}
}
