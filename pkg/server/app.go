package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RiskPulse/internal/middleware"
	"RiskPulse/internal/services/window"
	pkgch "RiskPulse/pkg/clickhouse"
	"RiskPulse/pkg/config"
	xhttp "RiskPulse/pkg/http"
	pkgkafka "RiskPulse/pkg/kafka"
	applogger "RiskPulse/pkg/logger"
)

// sweepInterval paces the idle-user eviction pass.
const sweepInterval = 10 * time.Minute

// App owns the application lifecycle: the stream consumer, the ingest
// pipeline, the idle sweeper and the HTTP server start together and shut
// down in reverse order on signal.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	agg         *window.Aggregator
	consumer    *pkgkafka.Consumer
	handler     pkgkafka.MessageHandler
	pipeline    *middleware.IngestPipeline
	chClient    *pkgch.Client
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []func() error
}

// New creates the App.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	agg *window.Aggregator,
	consumer *pkgkafka.Consumer,
	handler pkgkafka.MessageHandler,
	pipeline *middleware.IngestPipeline,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		agg:         agg,
		consumer:    consumer,
		handler:     handler,
		pipeline:    pipeline,
		chClient:    chClient,
		httpHandler: httpHandler,
	}
}

// AddCloser registers a resource closed during shutdown, after the servers
// have stopped.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("ingest pipeline started")
	}

	if a.consumer != nil && a.handler != nil {
		a.consumer.RegisterHandler(a.handler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))
	}

	go a.sweepIdle(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// sweepIdle periodically drops users idle past the feature TTL so per-user
// window state cannot grow without bound.
func (a *App) sweepIdle(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.agg.SweepIdle(now); n > 0 {
				a.log.Debug("swept idle users", applogger.Int("evicted", n), applogger.Int("tracked", a.agg.Users()))
			}
		}
	}
}

// shutdown stops intake first, then drains, then closes clients.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			a.log.Warn("ingest pipeline close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
