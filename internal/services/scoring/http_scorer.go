package scoring

import (
	"context"
	"fmt"
	"time"

	dsvc "RiskPulse/internal/domain/service"
	xhttp "RiskPulse/pkg/http"
)

// Config points the client at the external model service.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
}

// HTTPScorer calls the external model service over HTTP. The model is
// opaque: vector in, score in [0,1] out. Every call carries the schema
// version so the service can reject a layout it was not trained on.
type HTTPScorer struct {
	cfg    Config
	client *xhttp.Client
}

// NewHTTPScorer builds the scorer client with the configured timeout.
func NewHTTPScorer(cfg Config) (*HTTPScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scorer url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &HTTPScorer{
		cfg:    cfg,
		client: xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
	}, nil
}

type scoreReq struct {
	Vector        []float64 `json:"vector"`
	SchemaVersion string    `json:"schema_version"`
}

type scoreResp struct {
	RiskScore float64 `json:"risk_score"`
}

// Score posts the vector and returns the model's risk score. Transient
// failures are retried with a short backoff inside the configured attempt
// budget; the caller's fail-closed policy handles exhaustion.
func (s *HTTPScorer) Score(ctx context.Context, vector []float64, schemaVersion string) (float64, error) {
	var resp scoreResp
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		err = s.post(ctx, "/score", scoreReq{Vector: vector, SchemaVersion: schemaVersion}, &resp)
		if err == nil {
			break
		}
		if attempt == s.cfg.RetryAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}
	if resp.RiskScore < 0 || resp.RiskScore > 1 {
		return 0, fmt.Errorf("score %v outside [0,1]", resp.RiskScore)
	}
	return resp.RiskScore, nil
}

// Health probes the model service.
func (s *HTTPScorer) Health(ctx context.Context) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.cfg.BaseURL + "/health",
	}, nil)
	if err != nil {
		return fmt.Errorf("scorer health: %w", err)
	}
	return nil
}

func (s *HTTPScorer) post(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.cfg.BaseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

var _ dsvc.Scorer = (*HTTPScorer)(nil)
