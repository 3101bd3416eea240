package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int           `yaml:"port"`
	RateLimitPerSec       float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst        int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds       int           `yaml:"cache_ttl_seconds"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	RequestTimeout        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
// Driver is "postgres" (default) or "sqlite"; a sqlite DSN of ":memory:" runs the
// whole service against an in-memory store.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// ProtocolConfig tunes the workflow engine timing.
type ProtocolConfig struct {
	MinConfirmationGapSeconds int           `yaml:"min_confirmation_gap_seconds"`
	MinConfirmationGap        time.Duration `yaml:"-"`
	TimerPollSeconds          int           `yaml:"timer_poll_seconds"`
	TimerPollInterval         time.Duration `yaml:"-"`
	AckRetentionMinutes       int           `yaml:"ack_retention_minutes"`
}

// ChangeFeedConfig selects where committed store changes are fanned out to,
// besides the in-process broker.
type ChangeFeedConfig struct {
	Backend string      `yaml:"backend"` // "", "redis" or "kafka"
	Redis   RedisConfig `yaml:"redis"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// RedisConfig holds the Redis Streams connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// KafkaConfig holds the Kafka producer settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// AuthConfig configures actor extraction. With an empty secret the actor is read
// from the X-User-ID and X-User-Role headers.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 10
	}
	cfg.Server.RequestTimeout = time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Protocol.MinConfirmationGapSeconds <= 0 {
		cfg.Protocol.MinConfirmationGapSeconds = 60
	}
	cfg.Protocol.MinConfirmationGap = time.Duration(cfg.Protocol.MinConfirmationGapSeconds) * time.Second
	if cfg.Protocol.TimerPollSeconds <= 0 {
		cfg.Protocol.TimerPollSeconds = 5
	}
	cfg.Protocol.TimerPollInterval = time.Duration(cfg.Protocol.TimerPollSeconds) * time.Second
	if cfg.Protocol.AckRetentionMinutes <= 0 {
		cfg.Protocol.AckRetentionMinutes = 120
	}

	if cfg.ChangeFeed.Redis.Stream == "" {
		cfg.ChangeFeed.Redis.Stream = "htn:changes"
	}
	if cfg.ChangeFeed.Kafka.Topic == "" {
		cfg.ChangeFeed.Kafka.Topic = "htn-changes"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
