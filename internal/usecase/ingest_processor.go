package usecase

import (
	"context"
	"fmt"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	"RiskPulse/pkg/util"
)

// IngestProcessor accepts validated ingest requests and publishes them to
// the event log. Archival and schema enforcement stay at the edge; this is
// only the bridge from the HTTP boundary onto the partitioned stream.
type IngestProcessor struct {
	pub     drepo.EventPublisher
	metrics drepo.Metrics
}

// NewIngestProcessor creates the processor.
func NewIngestProcessor(pub drepo.EventPublisher, metrics drepo.Metrics) *IngestProcessor {
	return &IngestProcessor{pub: pub, metrics: metrics}
}

// Ingest converts and publishes one event, keyed by user so partition
// ordering holds per user.
func (p *IngestProcessor) Ingest(ctx context.Context, req *models.IngestRequest) (*models.TransactionEvent, error) {
	ts, ok := util.ParseTime(req.TS)
	if !ok {
		return nil, fmt.Errorf("parse ts: unrecognized timestamp %q", req.TS)
	}

	e := &models.TransactionEvent{
		EventID:    req.EventID,
		TS:         ts,
		UserID:     req.UserID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Country:    req.Country,
		DeviceID:   req.DeviceID,
		IP:         req.IP,
		MerchantID: req.MerchantID,
		Model:      req.Model,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := p.pub.Publish(ctx, e); err != nil {
		p.metrics.RecordError("ingest_publish")
		return nil, fmt.Errorf("publish event: %w", err)
	}
	p.metrics.RecordLatency("ingest_publish", time.Since(start).Seconds())

	return e, nil
}
