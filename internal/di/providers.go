package di

import (
	"context"
	"fmt"
	"time"

	"RiskPulse/internal/domain/models"
	drepo "RiskPulse/internal/domain/repository"
	dsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/handler/api"
	mid "RiskPulse/internal/middleware"
	internalrepo "RiskPulse/internal/repository"
	"RiskPulse/internal/services/decision"
	"RiskPulse/internal/services/scoring"
	"RiskPulse/internal/services/window"
	"RiskPulse/internal/usecase"
	pkgch "RiskPulse/pkg/clickhouse"
	"RiskPulse/pkg/config"
	xhttp "RiskPulse/pkg/http"
	pkgkafka "RiskPulse/pkg/kafka"
	"RiskPulse/pkg/logger"
	"RiskPulse/pkg/metrics"
	pkgredis "RiskPulse/pkg/redis"
	"RiskPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lc := &logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return logger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideRedisClient connects to Redis.
func ProvideRedisClient(cfg *config.Config) (*pkgredis.Client, error) {
	client, err := pkgredis.NewClient(
		pkgredis.WithHost(cfg.Redis.Host),
		pkgredis.WithPort(cfg.Redis.Port),
		pkgredis.WithPassword(cfg.Redis.Password),
		pkgredis.WithDB(cfg.Redis.DB),
		pkgredis.WithPoolSize(cfg.Redis.PoolSize),
		pkgredis.WithPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideFeatureStore creates the Redis-backed feature store.
func ProvideFeatureStore(client *pkgredis.Client) drepo.FeatureStore {
	return internalrepo.NewRedisFeatureStore(client)
}

// ProvideAggregator builds the window aggregator from configuration,
// falling back to the shipped window layout where unset.
func ProvideAggregator(cfg *config.Config) *window.Aggregator {
	wc := window.DefaultConfig()
	w := cfg.Features.Windows
	if w.Fast > 0 && w.FastBucket > 0 {
		wc.Fast = window.Horizon{Span: w.Fast, Bucket: w.FastBucket}
	}
	if w.Medium > 0 && w.MediumBucket > 0 {
		wc.Medium = window.Horizon{Span: w.Medium, Bucket: w.MediumBucket}
	}
	if w.Slow > 0 && w.SlowBucket > 0 {
		wc.Slow = window.Horizon{Span: w.Slow, Bucket: w.SlowBucket}
	}
	if cfg.Features.RecencyCap > 0 {
		wc.RecencyCap = cfg.Features.RecencyCap
	}
	if cfg.Features.RecentIDs > 0 {
		wc.RecentIDs = cfg.Features.RecentIDs
	}
	if cfg.Features.TTL > 0 {
		wc.IdleTTL = cfg.Features.TTL
	}
	wc.ClampFuture = cfg.Features.ClampFuture
	return window.NewAggregator(wc)
}

// ProvideKafkaProducer creates a Kafka producer, hash-balanced by key so
// all events for one user land on one partition.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideIngestPipeline wraps the Kafka publisher with the retry buffer.
func ProvideIngestPipeline(producer *pkgkafka.Producer, m drepo.Metrics, cfg *config.Config) *mid.IngestPipeline {
	pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
	return mid.NewIngestPipeline(pub, m)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTransactionHandler creates the stream handler for the events topic.
func ProvideTransactionHandler(
	cfg *config.Config,
	agg *window.Aggregator,
	store drepo.FeatureStore,
	m drepo.Metrics,
	log *logger.Logger,
) *usecase.TransactionHandler {
	ttl := cfg.Features.TTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return usecase.NewTransactionHandler(cfg.Kafka.Topic, agg, store, m, log, ttl)
}

// ProvideScorer creates the HTTP client for the external model service.
func ProvideScorer(cfg *config.Config) (dsvc.Scorer, error) {
	return scoring.NewHTTPScorer(scoring.Config{
		BaseURL:       cfg.Scorer.URL,
		Timeout:       cfg.Scorer.Timeout,
		RetryAttempts: cfg.Scorer.RetryAttempts,
	})
}

// ProvideClickHouseClient connects to ClickHouse when auditing is enabled;
// nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	ch := cfg.Audit.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideAuditLog creates the audit sink; nil when auditing is disabled.
func ProvideAuditLog(chClient *pkgch.Client, cfg *config.Config) (drepo.AuditLog, error) {
	if chClient == nil {
		return nil, nil
	}
	table := cfg.Audit.Table
	if table == "" {
		table = cfg.Audit.ClickHouse.Database + ".risk_decisions"
	}
	audit := internalrepo.NewClickHouseAudit(chClient.DB(), table)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := audit.Init(ctx); err != nil {
		return nil, err
	}
	return audit, nil
}

// ProvideDecisionEngine assembles the scoring path with its validated
// policy configuration.
func ProvideDecisionEngine(
	cfg *config.Config,
	store drepo.FeatureStore,
	scorer dsvc.Scorer,
	audit drepo.AuditLog,
	m drepo.Metrics,
	log *logger.Logger,
) (*decision.Engine, error) {
	rules := decision.DefaultRuleThresholds()
	if cfg.Reasons.Velocity5m > 0 {
		rules.Velocity5m = cfg.Reasons.Velocity5m
	}
	if cfg.Reasons.Velocity1h > 0 {
		rules.Velocity1h = cfg.Reasons.Velocity1h
	}
	if cfg.Reasons.AmountZScore > 0 {
		rules.AmountZScore = cfg.Reasons.AmountZScore
	}
	if cfg.Reasons.DeviceChurn24h > 0 {
		rules.DeviceChurn24h = cfg.Reasons.DeviceChurn24h
	}
	if cfg.Reasons.IPChanges24h > 0 {
		rules.IPChanges24h = cfg.Reasons.IPChanges24h
	}
	if cfg.Reasons.MerchantVelocity1h > 0 {
		rules.MerchantVelocity1h = cfg.Reasons.MerchantVelocity1h
	}

	freshness := cfg.Features.Freshness
	if freshness <= 0 {
		freshness = 24 * time.Hour
	}

	return decision.NewEngine(decision.Config{
		Low:           cfg.Decision.Low,
		High:          cfg.Decision.High,
		FailPolicy:    models.Outcome(cfg.Decision.FailPolicy),
		SchemaVersion: cfg.Decision.SchemaVersion,
		Freshness:     freshness,
		Rules:         rules,
	}, store, scorer, audit, m, log)
}

// ProvideIngestProcessor bridges the HTTP ingest boundary onto the stream.
func ProvideIngestProcessor(pipeline *mid.IngestPipeline, m drepo.Metrics) *usecase.IngestProcessor {
	return usecase.NewIngestProcessor(pipeline, m)
}

// ProvideHTTPHandler creates the API surface.
func ProvideHTTPHandler(
	log *logger.Logger,
	engine *decision.Engine,
	ingest *usecase.IngestProcessor,
	store drepo.FeatureStore,
	scorer dsvc.Scorer,
) xhttp.Handler {
	return api.NewRiskEchoHandler(log, engine, ingest, store, scorer)
}

// logPublisher adapts the Kafka producer to the log collector's sink.
type logPublisher struct {
	producer *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.producer.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	agg *window.Aggregator,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	handler *usecase.TransactionHandler,
	pipeline *mid.IngestPipeline,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
	store drepo.FeatureStore,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if cfg.Logging.CollectTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Logging.CollectTopic,
			Publisher:      logPublisher{producer: producer},
		})
	}
	app := server.New(cfg, log, agg, consumer, handler, pipeline, chClient, httpHandler)
	app.AddCloser(store.Close)
	app.AddCloser(func() error {
		log.RemoveCollector()
		return nil
	})
	return app
}
