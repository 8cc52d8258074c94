package decision

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	"RiskPulse/pkg/logger"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	rec *models.FeatureRecord
	err error
}

func (s *stubStore) Get(ctx context.Context, userID string) (*models.FeatureRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

func (s *stubStore) ApplyDelta(ctx context.Context, userID string, d *models.FeatureDelta) error {
	return nil
}
func (s *stubStore) TouchTTL(ctx context.Context, userID string, ttl time.Duration) error { return nil }
func (s *stubStore) Health(ctx context.Context) error                                     { return nil }
func (s *stubStore) Close() error                                                         { return nil }

type stubScorer struct {
	score float64
	err   error
}

func (s *stubScorer) Score(ctx context.Context, vector []float64, schemaVersion string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}
func (s *stubScorer) Health(ctx context.Context) error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordEventApplied(string)     {}
func (nopMetrics) RecordDecision(string)         {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordFreshnessLag(float64)    {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testConfig() Config {
	return Config{
		Low:           0.3,
		High:          0.7,
		FailPolicy:    models.OutcomeStepUp,
		SchemaVersion: SchemaVersion,
		Freshness:     time.Hour,
		Rules:         DefaultRuleThresholds(),
	}
}

func warmRecord(userID string) *models.FeatureRecord {
	return &models.FeatureRecord{
		UserID:    userID,
		Txns5m:    1,
		Txns1h:    3,
		UpdatedAt: t0.Add(-time.Minute),
	}
}

func testEngine(t *testing.T, cfg Config, store drepo.FeatureStore, scorer *stubScorer) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, store, scorer, nil, nopMetrics{}, testLogger(t),
		WithEngineClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestDecisionBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Outcome
	}{
		{0.2999, models.OutcomeAllow},
		{0.3, models.OutcomeStepUp},
		{0.5, models.OutcomeStepUp},
		{0.7, models.OutcomeBlock},
		{0.99, models.OutcomeBlock},
		{0, models.OutcomeAllow},
	}
	for _, tc := range cases {
		e := testEngine(t, testConfig(), &stubStore{rec: warmRecord("u-1")}, &stubScorer{score: tc.score})
		d, err := e.Predict(context.Background(), "u-1", nil)
		if err != nil {
			t.Fatalf("score %v: %v", tc.score, err)
		}
		if d.Outcome != tc.want {
			t.Fatalf("score %v: got %s want %s", tc.score, d.Outcome, tc.want)
		}
	}
}

func TestPredictColdStart(t *testing.T) {
	e := testEngine(t, testConfig(), &stubStore{err: drepo.ErrNotFound}, &stubScorer{score: 0.1})

	d, err := e.Predict(context.Background(), "u-new", nil)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !d.ColdStart {
		t.Fatal("expected cold_start")
	}
	if !contains(d.Reasons, models.ReasonInsufficientHistory) {
		t.Fatalf("missing insufficient_history: %v", d.Reasons)
	}
	if d.Outcome != models.OutcomeAllow {
		t.Fatalf("got %s want allow", d.Outcome)
	}
}

func TestPredictStaleRecordIsCold(t *testing.T) {
	rec := warmRecord("u-1")
	rec.UpdatedAt = t0.Add(-2 * time.Hour)
	rec.Txns5m = 100 // must not leak into reasons once the record is cold

	e := testEngine(t, testConfig(), &stubStore{rec: rec}, &stubScorer{score: 0.1})
	d, _ := e.Predict(context.Background(), "u-1", nil)
	if !d.ColdStart {
		t.Fatal("stale record should be treated as cold")
	}
	if contains(d.Reasons, models.ReasonHighVelocity5m) {
		t.Fatalf("stale features leaked into reasons: %v", d.Reasons)
	}
}

func TestPredictFailsClosed(t *testing.T) {
	e := testEngine(t, testConfig(), &stubStore{rec: warmRecord("u-1")}, &stubScorer{err: errors.New("connection refused")})

	d, err := e.Predict(context.Background(), "u-1", nil)
	if err != nil {
		t.Fatalf("degraded predict must not error: %v", err)
	}
	if d.Outcome != models.OutcomeStepUp {
		t.Fatalf("got %s want fail-closed step_up", d.Outcome)
	}
	if !d.Degraded {
		t.Fatal("expected degraded result")
	}
	if d.Reasons[0] != models.ReasonScorerUnavailable {
		t.Fatalf("scorer_unavailable must lead the reasons: %v", d.Reasons)
	}
}

func TestReasonsOrderStable(t *testing.T) {
	rec := warmRecord("u-1")
	rec.Txns5m = 10
	rec.Txns1h = 30
	rec.DeviceChurn24h = 5
	store := &stubStore{rec: rec}

	e := testEngine(t, testConfig(), store, &stubScorer{score: 0.9})
	first, _ := e.Predict(context.Background(), "u-1", nil)

	want := []string{
		models.ReasonHighVelocity5m,
		models.ReasonHighVelocity1h,
		models.ReasonHighDeviceChurn,
	}
	if !reflect.DeepEqual(first.Reasons, want) {
		t.Fatalf("reasons: got %v want %v", first.Reasons, want)
	}
	for i := 0; i < 5; i++ {
		again, _ := e.Predict(context.Background(), "u-1", nil)
		if !reflect.DeepEqual(again.Reasons, first.Reasons) {
			t.Fatalf("reasons unstable: %v vs %v", again.Reasons, first.Reasons)
		}
	}
}

func TestWarmQuietUserGetsFallbackReason(t *testing.T) {
	e := testEngine(t, testConfig(), &stubStore{rec: warmRecord("u-1")}, &stubScorer{score: 0.1})
	d, _ := e.Predict(context.Background(), "u-1", nil)
	if len(d.Reasons) != 1 || d.Reasons[0] != models.ReasonNoIndicators {
		t.Fatalf("got %v want [%s]", d.Reasons, models.ReasonNoIndicators)
	}
}

func TestPassthroughOverridesStored(t *testing.T) {
	rec := warmRecord("u-1")
	rec.Passthrough[0] = 1.5

	var got []float64
	scorer := &capturingScorer{score: 0.1}
	e, err := NewEngine(testConfig(), &stubStore{rec: rec}, scorer, nil, nopMetrics{}, testLogger(t),
		WithEngineClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	var pt models.PassthroughFeatures
	pt[0] = -7
	if _, err := e.Predict(context.Background(), "u-1", &pt); err != nil {
		t.Fatalf("predict: %v", err)
	}
	got = scorer.vector
	if got[0] != -7 {
		t.Fatalf("request passthrough ignored: vector[0]=%v", got[0])
	}
	if len(got) != VectorLen {
		t.Fatalf("vector length: got %d want %d", len(got), VectorLen)
	}
}

func TestConfigValidation(t *testing.T) {
	bad := testConfig()
	bad.Low = 0.8 // low > high is a startup error
	if _, err := NewEngine(bad, &stubStore{}, &stubScorer{}, nil, nopMetrics{}, testLogger(t)); err == nil {
		t.Fatal("expected error for low > high")
	}

	bad = testConfig()
	bad.SchemaVersion = "v999"
	if _, err := NewEngine(bad, &stubStore{}, &stubScorer{}, nil, nopMetrics{}, testLogger(t)); err == nil {
		t.Fatal("expected error for schema mismatch")
	}

	bad = testConfig()
	bad.FailPolicy = "maybe"
	if _, err := NewEngine(bad, &stubStore{}, &stubScorer{}, nil, nopMetrics{}, testLogger(t)); err == nil {
		t.Fatal("expected error for unknown fail policy")
	}
}

type capturingScorer struct {
	score  float64
	vector []float64
}

func (s *capturingScorer) Score(ctx context.Context, vector []float64, schemaVersion string) (float64, error) {
	s.vector = vector
	return s.score, nil
}
func (s *capturingScorer) Health(ctx context.Context) error { return nil }

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
