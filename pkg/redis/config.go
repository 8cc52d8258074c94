package redis

import "time"

// Option configures the Redis client.
type Option func(*Config)

// Config holds Redis connection settings.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// WithHost sets the Redis host.
func WithHost(host string) Option {
	return func(c *Config) {
		c.Host = host
	}
}

// WithPort sets the Redis port.
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(c *Config) {
		c.Password = password
	}
}

// WithDB selects the Redis database.
func WithDB(db int) Option {
	return func(c *Config) {
		c.DB = db
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.PoolSize = size
		}
	}
}

// WithPrefix sets the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}
