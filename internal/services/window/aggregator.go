package window

import (
	"sync"
	"time"

	"RiskPulse/internal/domain/models"
)

// Horizon is one sliding-window span and its bucket width.
type Horizon struct {
	Span   time.Duration
	Bucket time.Duration
}

// Config fixes the aggregator's windows and bounds.
type Config struct {
	Fast   Horizon // velocity window, default 5m in 1m buckets
	Medium Horizon // default 1h in 1m buckets
	Slow   Horizon // default 24h in 1h buckets

	// RecencyCap bounds the materialized device/ip/merchant/country sets.
	RecencyCap int
	// RecentIDs bounds the per-user replay-detection ring.
	RecentIDs int
	// IdleTTL is how long an inactive user's state survives before sweep.
	IdleTTL time.Duration
	// ClampFuture pins event timestamps ahead of the local clock to now so
	// clock skew cannot park counts in future buckets.
	ClampFuture bool
}

// DefaultConfig mirrors the shipped configuration.
func DefaultConfig() Config {
	return Config{
		Fast:        Horizon{Span: 5 * time.Minute, Bucket: time.Minute},
		Medium:      Horizon{Span: time.Hour, Bucket: time.Minute},
		Slow:        Horizon{Span: 24 * time.Hour, Bucket: time.Hour},
		RecencyCap:  64,
		RecentIDs:   256,
		IdleTTL:     48 * time.Hour,
		ClampFuture: true,
	}
}

type userState struct {
	mu sync.Mutex

	fast   *Counter
	medium *Counter
	slow   *Counter

	devices   *RecencySet
	ips       *RecencySet
	countries *RecencySet
	merchants *RecencySet
	velocity  *KeyedCounter

	lastEventID  string
	lastEventTS  time.Time
	lastAmount   float64
	lastMerchant string

	recentIDs map[string]struct{}
	idRing    []string
	idPos     int

	touched time.Time
}

// Aggregator is the per-user sliding-window state machine. Partition
// ownership keeps event application for one user on one consumer; the
// per-user mutex only serializes snapshots racing an apply on the same user.
type Aggregator struct {
	cfg Config

	mu    sync.RWMutex
	users map[string]*userState

	clock func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the wall clock (tests).
func WithClock(fn func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if fn != nil {
			a.clock = fn
		}
	}
}

// NewAggregator creates an aggregator with the given window configuration.
func NewAggregator(cfg Config, opts ...AggregatorOption) *Aggregator {
	if cfg.Fast.Span <= 0 {
		cfg = DefaultConfig()
	}
	a := &Aggregator{
		cfg:   cfg,
		users: make(map[string]*userState),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one event into the user's windows and returns the resulting
// feature snapshot. A replayed event_id is a silent no-op: applied is false
// and the snapshot is nil. Never an error — duplicates are expected under
// at-least-once delivery.
func (a *Aggregator) Apply(e *models.TransactionEvent) (snap *models.FeatureRecord, applied bool) {
	now := a.clock()
	st := a.state(e.UserID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if e.EventID == st.lastEventID {
		return nil, false
	}
	if _, seen := st.recentIDs[e.EventID]; seen {
		return nil, false
	}

	ts := e.TS
	if a.cfg.ClampFuture && ts.After(now) {
		ts = now
	}

	st.fast.Record(ts, e.Amount)
	st.medium.Record(ts, e.Amount)
	st.slow.Record(ts, e.Amount)

	st.devices.Insert(e.DeviceID, ts)
	st.ips.Insert(e.IP, ts)
	st.countries.Insert(e.Country, ts)
	st.merchants.Insert(e.MerchantID, ts)
	st.velocity.Record(e.MerchantID, ts)

	st.rememberID(e.EventID, a.cfg.RecentIDs)
	st.lastEventID = e.EventID
	if ts.After(st.lastEventTS) {
		st.lastEventTS = ts
	}
	st.lastAmount = e.Amount
	st.lastMerchant = e.MerchantID
	st.touched = now

	return a.snapshotLocked(e.UserID, st, now), true
}

// Snapshot reads the user's current feature view at the given instant. The
// second return is false when the user has no state.
func (a *Aggregator) Snapshot(userID string, now time.Time) (*models.FeatureRecord, bool) {
	a.mu.RLock()
	st, ok := a.users[userID]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return a.snapshotLocked(userID, st, now), true
}

// snapshotLocked assumes st.mu is held.
func (a *Aggregator) snapshotLocked(userID string, st *userState, now time.Time) *models.FeatureRecord {
	fast := st.fast.Query(now)
	medium := st.medium.Query(now)
	slow := st.slow.Query(now)

	z, ok := slow.Amount.ZScore(st.lastAmount)

	return &models.FeatureRecord{
		UserID:          userID,
		Txns5m:          fast.Count,
		Txns1h:          medium.Count,
		Txns24h:         slow.Count,
		AvgAmount1h:     medium.Avg(),
		MaxAmount24h:    slow.Max,
		AmountMean24h:   slow.Amount.Mean(),
		AmountStdDev24h: slow.Amount.StdDev(),
		AmountZScore:    z,
		ZScoreValid:     ok,
		DeviceChurn5m:   st.devices.Distinct(now, a.cfg.Fast.Span),
		DeviceChurn24h:  st.devices.Distinct(now, a.cfg.Slow.Span),
		IPChurn24h:      st.ips.Distinct(now, a.cfg.Slow.Span),
		CountryChurn24h: st.countries.Distinct(now, a.cfg.Slow.Span),
		MerchantVel1h:   st.velocity.Query(st.lastMerchant, now),
		LastEventID:     st.lastEventID,
		LastEventTS:     st.lastEventTS,
		UpdatedAt:       now,
	}
}

// SweepIdle drops users whose state has been idle past the TTL. Returns the
// number of users evicted.
func (a *Aggregator) SweepIdle(now time.Time) int {
	cutoff := now.Add(-a.cfg.IdleTTL)
	a.mu.Lock()
	defer a.mu.Unlock()
	evicted := 0
	for id, st := range a.users {
		st.mu.Lock()
		idle := st.touched.Before(cutoff)
		st.mu.Unlock()
		if idle {
			delete(a.users, id)
			evicted++
		}
	}
	return evicted
}

// Users returns the number of tracked users.
func (a *Aggregator) Users() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}

func (a *Aggregator) state(userID string) *userState {
	a.mu.RLock()
	st, ok := a.users[userID]
	a.mu.RUnlock()
	if ok {
		return st
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok = a.users[userID]; ok {
		return st
	}
	st = &userState{
		fast:      NewCounter(a.cfg.Fast.Span, a.cfg.Fast.Bucket),
		medium:    NewCounter(a.cfg.Medium.Span, a.cfg.Medium.Bucket),
		slow:      NewCounter(a.cfg.Slow.Span, a.cfg.Slow.Bucket),
		devices:   NewRecencySet(a.cfg.Slow.Span, a.cfg.RecencyCap),
		ips:       NewRecencySet(a.cfg.Slow.Span, a.cfg.RecencyCap),
		countries: NewRecencySet(a.cfg.Slow.Span, a.cfg.RecencyCap),
		merchants: NewRecencySet(a.cfg.Slow.Span, a.cfg.RecencyCap),
		velocity:  NewKeyedCounter(a.cfg.Medium.Span, a.cfg.Medium.Bucket, a.cfg.RecencyCap),
		recentIDs: make(map[string]struct{}, a.cfg.RecentIDs),
		idRing:    make([]string, a.cfg.RecentIDs),
		touched:   a.clock(),
	}
	a.users[userID] = st
	return st
}

// rememberID records an applied event id in the bounded replay ring.
func (st *userState) rememberID(id string, cap int) {
	if cap <= 0 {
		return
	}
	if old := st.idRing[st.idPos]; old != "" {
		delete(st.recentIDs, old)
	}
	st.idRing[st.idPos] = id
	st.recentIDs[id] = struct{}{}
	st.idPos = (st.idPos + 1) % cap
}
