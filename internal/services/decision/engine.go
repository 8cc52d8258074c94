package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	dsvc "RiskPulse/internal/domain/service"
	"RiskPulse/pkg/logger"
)

// Config fixes the engine's policy knobs. Validate is called once at startup
// and a bad configuration is fatal, never silently defaulted.
type Config struct {
	// Low and High split the score range: score < Low allows, score >= High
	// blocks, anything between steps up.
	Low  float64
	High float64

	// FailPolicy is the outcome issued when the scorer is unavailable. The
	// engine fails closed: this is a named configuration value, never an
	// implicit allow.
	FailPolicy models.Outcome

	// SchemaVersion must match the compiled vector layout.
	SchemaVersion string

	// Freshness bounds how old a stored record may be before the user is
	// treated as cold.
	Freshness time.Duration

	Rules RuleThresholds
}

// Validate rejects configurations the engine must not serve with.
func (c Config) Validate() error {
	if c.Low < 0 || c.Low > 1 || c.High < 0 || c.High > 1 {
		return fmt.Errorf("decision thresholds must lie in [0,1]: low=%v high=%v", c.Low, c.High)
	}
	if c.Low > c.High {
		return fmt.Errorf("decision threshold low %v exceeds high %v", c.Low, c.High)
	}
	if _, ok := models.ParseOutcome(string(c.FailPolicy)); !ok {
		return fmt.Errorf("unknown scorer fail policy %q", c.FailPolicy)
	}
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("configured schema version %q does not match compiled layout %q", c.SchemaVersion, SchemaVersion)
	}
	if c.Freshness <= 0 {
		return fmt.Errorf("freshness must be positive, got %v", c.Freshness)
	}
	return nil
}

// Engine is the stateless, read-only scoring path: feature read, vector
// assembly, scorer call, threshold policy, reason generation. It never
// writes feature state; a cancelled call leaves no side effects beyond the
// best-effort audit record.
type Engine struct {
	cfg     Config
	store   drepo.FeatureStore
	scorer  dsvc.Scorer
	audit   drepo.AuditLog
	metrics drepo.Metrics
	log     *logger.Logger

	clock func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the wall clock (tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.clock = fn
		}
	}
}

// NewEngine validates the configuration and builds the engine. The audit
// sink may be nil when auditing is disabled.
func NewEngine(
	cfg Config,
	store drepo.FeatureStore,
	scorer dsvc.Scorer,
	audit drepo.AuditLog,
	metrics drepo.Metrics,
	log *logger.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decision config: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		store:   store,
		scorer:  scorer,
		audit:   audit,
		metrics: metrics,
		log:     log,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Predict scores one user. Passthrough fields supplied with the request
// override the stored ones; nil keeps the stored values. Infrastructure
// trouble degrades the result (cold start, fail-closed outcome) instead of
// failing the caller.
func (e *Engine) Predict(ctx context.Context, userID string, passthrough *models.PassthroughFeatures) (*models.Decision, error) {
	start := e.clock()

	rec, cold := e.getFeatures(ctx, userID)
	if passthrough != nil {
		rec.Passthrough = *passthrough
	}

	d := &models.Decision{
		UserID:    userID,
		ColdStart: cold,
		ScoredAt:  start,
	}

	score, err := e.scorer.Score(ctx, BuildVector(rec), e.cfg.SchemaVersion)
	if err != nil {
		e.metrics.RecordError("scorer")
		e.log.Warn("scorer unavailable, failing closed",
			logger.String("user_id", userID),
			logger.String("fail_policy", string(e.cfg.FailPolicy)),
			logger.Error(err))
		d.Degraded = true
		d.Outcome = e.cfg.FailPolicy
		d.Reasons = append([]string{models.ReasonScorerUnavailable}, Explain(e.cfg.Rules, rec, cold)...)
	} else {
		d.RiskScore = score
		d.Outcome = e.decide(score)
		d.Reasons = Explain(e.cfg.Rules, rec, cold)
	}

	e.metrics.RecordDecision(string(d.Outcome))
	e.metrics.RecordLatency("predict", time.Since(start).Seconds())
	e.recordAudit(d)

	return d, nil
}

// getFeatures reads the stored record and applies the freshness policy.
// Absent, expired, or unreadable records all resolve to the neutral cold
// record: the read path degrades rather than erroring.
func (e *Engine) getFeatures(ctx context.Context, userID string) (*models.FeatureRecord, bool) {
	rec, err := e.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, drepo.ErrNotFound) {
			e.metrics.RecordError("feature_read")
			e.log.Warn("feature read failed, treating user as cold",
				logger.String("user_id", userID), logger.Error(err))
		}
		return models.ColdRecord(userID), true
	}
	if e.clock().Sub(rec.UpdatedAt) > e.cfg.Freshness {
		return models.ColdRecord(userID), true
	}
	return rec, false
}

func (e *Engine) decide(score float64) models.Outcome {
	switch {
	case score < e.cfg.Low:
		return models.OutcomeAllow
	case score >= e.cfg.High:
		return models.OutcomeBlock
	default:
		return models.OutcomeStepUp
	}
}

// recordAudit ships the decision to the audit sink without blocking or
// failing the caller.
func (e *Engine) recordAudit(d *models.Decision) {
	if e.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.audit.Record(ctx, d); err != nil {
			e.metrics.RecordError("audit")
			e.log.Warn("audit write failed", logger.String("user_id", d.UserID), logger.Error(err))
		}
	}()
}
