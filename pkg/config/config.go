package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level        string `yaml:"level"`
		Format       string `yaml:"format"`
		Output       string `yaml:"output"`
		CollectTopic string `yaml:"collect_topic"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Features struct {
		Windows struct {
			Fast         time.Duration `yaml:"fast"`
			FastBucket   time.Duration `yaml:"fast_bucket"`
			Medium       time.Duration `yaml:"medium"`
			MediumBucket time.Duration `yaml:"medium_bucket"`
			Slow         time.Duration `yaml:"slow"`
			SlowBucket   time.Duration `yaml:"slow_bucket"`
		} `yaml:"windows"`
		TTL         time.Duration `yaml:"ttl"`
		Freshness   time.Duration `yaml:"freshness"`
		RecencyCap  int           `yaml:"recency_cap"`
		RecentIDs   int           `yaml:"recent_ids"`
		ClampFuture bool          `yaml:"clamp_future"`
	} `yaml:"features"`
	Decision struct {
		Low           float64 `yaml:"low"`
		High          float64 `yaml:"high"`
		FailPolicy    string  `yaml:"fail_policy"`
		SchemaVersion string  `yaml:"schema_version"`
	} `yaml:"decision"`
	Reasons struct {
		Velocity5m         int64   `yaml:"velocity_5m"`
		Velocity1h         int64   `yaml:"velocity_1h"`
		AmountZScore       float64 `yaml:"amount_zscore"`
		DeviceChurn24h     int64   `yaml:"device_churn_24h"`
		IPChanges24h       int64   `yaml:"ip_changes_24h"`
		MerchantVelocity1h int64   `yaml:"merchant_velocity_1h"`
	} `yaml:"reasons"`
	Scorer struct {
		URL           string        `yaml:"url"`
		Timeout       time.Duration `yaml:"timeout"`
		RetryAttempts int           `yaml:"retry_attempts"`
	} `yaml:"scorer"`
	Audit struct {
		Enabled    bool   `yaml:"enabled"`
		Table      string `yaml:"table"`
		ClickHouse struct {
			Host             string        `yaml:"host"`
			Port             int           `yaml:"port"`
			Database         string        `yaml:"database"`
			User             string        `yaml:"user"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			AsyncInsert      bool          `yaml:"async_insert"`
			WaitForAsync     bool          `yaml:"wait_for_async_insert"`
			DialTimeout      time.Duration `yaml:"dial_timeout"`
			ReadTimeout      time.Duration `yaml:"read_timeout"`
			WriteTimeout     time.Duration `yaml:"write_timeout"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		} `yaml:"clickhouse"`
	} `yaml:"audit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SCORER_URL"); v != "" {
		c.Scorer.URL = v
	}

	return c, nil
}

// Validate rejects configurations the service must not start with. A bad
// decision policy is a deliberate operator error, fatal at startup.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required")
	}
	if c.Scorer.URL == "" {
		return fmt.Errorf("scorer.url is required")
	}
	if c.Decision.Low < 0 || c.Decision.Low > 1 || c.Decision.High < 0 || c.Decision.High > 1 {
		return fmt.Errorf("decision thresholds must lie in [0,1]: low=%v high=%v", c.Decision.Low, c.Decision.High)
	}
	if c.Decision.Low > c.Decision.High {
		return fmt.Errorf("decision.low %v exceeds decision.high %v", c.Decision.Low, c.Decision.High)
	}
	if c.Decision.SchemaVersion == "" {
		return fmt.Errorf("decision.schema_version is required")
	}
	switch c.Decision.FailPolicy {
	case "allow", "step_up", "block":
	default:
		return fmt.Errorf("decision.fail_policy must be allow, step_up or block, got %q", c.Decision.FailPolicy)
	}
	w := c.Features.Windows
	if w.Fast < 0 || w.Medium < 0 || w.Slow < 0 ||
		w.FastBucket < 0 || w.MediumBucket < 0 || w.SlowBucket < 0 {
		return fmt.Errorf("feature window horizons and bucket widths cannot be negative")
	}
	return nil
}
