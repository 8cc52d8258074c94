package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	"RiskPulse/internal/services/window"
	pkgkafka "RiskPulse/pkg/kafka"
	"RiskPulse/pkg/logger"
)

// TransactionHandler consumes transaction events and folds them into the
// sliding windows, then shares the resulting snapshot through the feature
// store. Returning an error keeps the offset uncommitted so the broker
// redelivers; the aggregator's idempotency makes redelivery safe.
type TransactionHandler struct {
	topic   string
	agg     *window.Aggregator
	store   drepo.FeatureStore
	metrics drepo.Metrics
	log     *logger.Logger
	ttl     time.Duration
	clock   func() time.Time
}

// HandlerOption configures a TransactionHandler.
type HandlerOption func(*TransactionHandler)

// WithHandlerClock overrides the wall clock (tests).
func WithHandlerClock(fn func() time.Time) HandlerOption {
	return func(h *TransactionHandler) {
		if fn != nil {
			h.clock = fn
		}
	}
}

// NewTransactionHandler creates the handler.
func NewTransactionHandler(
	topic string,
	agg *window.Aggregator,
	store drepo.FeatureStore,
	metrics drepo.Metrics,
	log *logger.Logger,
	ttl time.Duration,
	opts ...HandlerOption,
) *TransactionHandler {
	h := &TransactionHandler{
		topic:   topic,
		agg:     agg,
		store:   store,
		metrics: metrics,
		log:     log,
		ttl:     ttl,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TransactionHandler) Topic() string { return h.topic }

// Handle applies one event. Malformed payloads error out to the dead-letter
// path; duplicates commit as silent no-ops; a store failure returns the
// error so the event is redelivered.
func (h *TransactionHandler) Handle(ctx context.Context, b []byte) error {
	var e models.TransactionEvent
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordEventApplied("invalid")
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if err := e.Validate(); err != nil {
		h.metrics.RecordEventApplied("invalid")
		h.log.Warn("invalid event", logger.String("event_id", e.EventID), logger.Error(err))
		return err
	}

	snap, applied := h.agg.Apply(&e)
	if !applied {
		h.metrics.RecordEventApplied("duplicate")
		// A redelivery after a failed store write carries the most recently
		// applied event: the windows already hold it, only the store write
		// is missing. Re-push the gauge snapshot so the store converges;
		// duplicates of older events stay pure no-ops.
		if cur, ok := h.agg.Snapshot(e.UserID, h.clock()); ok && cur.LastEventID == e.EventID {
			return h.resync(ctx, &e, cur)
		}
		return nil
	}
	snap.Passthrough = e.Model

	start := time.Now()
	err := h.store.ApplyDelta(ctx, e.UserID, deltaFromSnapshot(snap, e.Amount))
	h.metrics.RecordLatency("store_write", time.Since(start).Seconds())
	if err != nil {
		// a lost CAS means a fresher writer already advanced the record;
		// this writer's increments landed, nothing to redo
		if errors.Is(err, drepo.ErrConflict) {
			h.log.Debug("stale ordering write lost",
				logger.String("user_id", e.UserID), logger.String("event_id", e.EventID))
		} else {
			h.metrics.RecordError("store_write")
			return err
		}
	}

	if err := h.store.TouchTTL(ctx, e.UserID, h.ttl); err != nil {
		// state is already applied; a missed refresh only shortens the
		// record's life, so log instead of forcing a redelivery the
		// duplicate check would ignore anyway
		h.metrics.RecordError("store_ttl")
		h.log.Warn("ttl refresh failed", logger.String("user_id", e.UserID), logger.Error(err))
	}

	h.metrics.RecordEventApplied("applied")
	h.metrics.RecordFreshnessLag(h.clock().Sub(e.TS).Seconds())
	return nil
}

// resync writes the current snapshot without increments. The lifetime
// totals may undercount across a store outage; the window features and
// ordering pair converge exactly.
func (h *TransactionHandler) resync(ctx context.Context, e *models.TransactionEvent, cur *models.FeatureRecord) error {
	cur.Passthrough = e.Model
	d := deltaFromSnapshot(cur, 0)
	d.Inc = nil
	if err := h.store.ApplyDelta(ctx, e.UserID, d); err != nil && !errors.Is(err, drepo.ErrConflict) {
		h.metrics.RecordError("store_write")
		return err
	}
	if err := h.store.TouchTTL(ctx, e.UserID, h.ttl); err != nil {
		h.metrics.RecordError("store_ttl")
		h.log.Warn("ttl refresh failed", logger.String("user_id", e.UserID), logger.Error(err))
	}
	return nil
}

// deltaFromSnapshot splits the snapshot into commutative increments, gauge
// sets, and the CAS-guarded ordering pair.
func deltaFromSnapshot(snap *models.FeatureRecord, amount float64) *models.FeatureDelta {
	set := snap.ToFields()
	delete(set, models.FieldLastEventID)
	delete(set, models.FieldLastEventTS)
	return &models.FeatureDelta{
		Inc: map[string]float64{
			models.FieldEventsTotal: 1,
			models.FieldAmountTotal: amount,
		},
		Set:         set,
		LastEventID: snap.LastEventID,
		LastEventTS: snap.LastEventTS,
	}
}

var _ pkgkafka.MessageHandler = (*TransactionHandler)(nil)
