package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration of the dashboard backend.
type Config struct {
	Server    ServerConfig
	REST      RESTConfig
	Security  SecurityConfig
	Query     QueryConfig
	Kafka     KafkaConfig
	Logging   LoggingConfig
	Websocket WebsocketConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8081"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RESTConfig describes the upstream REST backend every resource service talks to.
type RESTConfig struct {
	BaseURL   string        `env:"REST_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout   time.Duration `env:"REST_TIMEOUT" envDefault:"10s"`
	RateLimit float64       `env:"REST_RATE_LIMIT" envDefault:"0"`
	Burst     int           `env:"REST_BURST" envDefault:"10"`
	UserAgent string        `env:"REST_USER_AGENT" envDefault:"bizdash/1.0"`
}

type SecurityConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	JWTPublicKey string `env:"JWT_PUBLIC_KEY"`
}

// QueryConfig tunes the query cache layer.
type QueryConfig struct {
	StaleTime      time.Duration `env:"QUERY_STALE_TIME" envDefault:"30s"`
	CacheTime      time.Duration `env:"QUERY_CACHE_TIME" envDefault:"5m"`
	MaxIdleEntries int           `env:"QUERY_MAX_IDLE_ENTRIES" envDefault:"512"`
	MaxRetries     int           `env:"QUERY_MAX_RETRIES" envDefault:"3"`
	RetryInitial   time.Duration `env:"QUERY_RETRY_INITIAL" envDefault:"1s"`
	RetryMax       time.Duration `env:"QUERY_RETRY_MAX" envDefault:"30s"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"bizdash"`
	Topics  []string `env:"KAFKA_TOPICS" envSeparator:"," envDefault:"dashboard.stores,dashboard.copypoints,dashboard.sales,dashboard.payments,dashboard.conversations,dashboard.messages,dashboard.attachments,dashboard.integrations"`
}

type LoggingConfig struct {
	Level     string `env:"LOG_LEVEL" envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"text"`
	Directory string `env:"LOG_DIR" envDefault:"./logs"`
}

type WebsocketConfig struct {
	SendBuffer int `env:"WS_SEND_BUFFER" envDefault:"16"`
}

// SessionConfig bounds how long a dashboard session without sockets or requests lives.
type SessionConfig struct {
	IdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"15m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)
	cfg.Kafka.Topics = compact(cfg.Kafka.Topics)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if parsed, err := url.Parse(strings.TrimSpace(c.REST.BaseURL)); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("REST_BASE_URL %q is not an absolute url", c.REST.BaseURL))
	}
	if c.REST.Timeout <= 0 {
		errs = append(errs, errors.New("REST_TIMEOUT must be positive"))
	}
	if c.REST.RateLimit < 0 {
		errs = append(errs, errors.New("REST_RATE_LIMIT must not be negative"))
	}
	if strings.TrimSpace(c.Security.JWTSecret) == "" && strings.TrimSpace(c.Security.JWTPublicKey) == "" {
		errs = append(errs, errors.New("one of JWT_SECRET or JWT_PUBLIC_KEY is required"))
	}
	if c.Query.StaleTime <= 0 {
		errs = append(errs, errors.New("QUERY_STALE_TIME must be positive"))
	}
	if c.Query.CacheTime <= 0 {
		errs = append(errs, errors.New("QUERY_CACHE_TIME must be positive"))
	}
	if c.Query.MaxIdleEntries <= 0 {
		errs = append(errs, errors.New("QUERY_MAX_IDLE_ENTRIES must be positive"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}
	if c.Query.MaxRetries < 0 {
		errs = append(errs, errors.New("QUERY_MAX_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
