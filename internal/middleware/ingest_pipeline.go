package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
)

// IngestPipeline sits between the ingest boundary and the event log. When
// the broker hiccups it absorbs events into a bounded buffer and retries in
// the background, so short outages do not bounce callers. A full buffer
// fails the publish: the caller must see backpressure rather than silent
// loss.
type IngestPipeline struct {
	pub     drepo.EventPublisher
	metrics drepo.Metrics

	bufSize int
	bufCh   chan *models.TransactionEvent
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// PipelineOption configures an IngestPipeline.
type PipelineOption func(*IngestPipeline)

// WithBufferSize sets the retry buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewIngestPipeline creates the pipeline around a publisher.
func NewIngestPipeline(pub drepo.EventPublisher, metrics drepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		pub:     pub,
		metrics: metrics,
		bufSize: 2000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.TransactionEvent, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case e := <-p.bufCh:
				if e == nil {
					continue
				}
				if err := p.pub.Publish(ctx, e); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- e:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Publish forwards one event, parking it in the retry buffer when the
// broker rejects it. A buffered event counts as accepted.
func (p *IngestPipeline) Publish(ctx context.Context, e *models.TransactionEvent) error {
	start := time.Now()
	if err := e.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.pub.Publish(ctx, e); err != nil {
		p.metrics.RecordError("pipeline_publish")
		select {
		case p.bufCh <- e:
			return nil
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			return fmt.Errorf("pipeline downstream: %w", err)
		}
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

// PublishBatch forwards a batch through the same buffering policy.
func (p *IngestPipeline) PublishBatch(ctx context.Context, events []*models.TransactionEvent) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close stops flushing and closes the wrapped publisher.
func (p *IngestPipeline) Close() error {
	p.Stop()
	return p.pub.Close()
}

var _ drepo.EventPublisher = (*IngestPipeline)(nil)
