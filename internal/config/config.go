package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"lobby/internal/db"
)

const (
	RecordStoreSQLite   = "sqlite"
	RecordStorePostgres = "postgres"
)

type Config struct {
	HTTPPort  int    `env:"HTTP_PORT" envDefault:"8081"`
	CacheDir  string `env:"CACHE_DIR"`
	StaticDir string `env:"STATIC_DIR"`

	RecordStore string            `env:"RECORD_STORE" envDefault:"sqlite"`
	SQLitePath  string            `env:"SQLITE_PATH"`
	Postgres    db.PostgresConfig `envPrefix:"DB_"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"orders-updates"`

	SSEHeartbeat    time.Duration `env:"SSE_HEARTBEAT" envDefault:"15s"`
	SSEIdleTimeout  time.Duration `env:"SSE_IDLE_TIMEOUT" envDefault:"30m"`
	SSEWriteTimeout time.Duration `env:"SSE_WRITE_TIMEOUT" envDefault:"5s"`

	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"2s"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER" envDefault:"16"`

	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`
}

// Load reads envFile into the process environment, if it exists, and then
// parses the environment. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.RecordStore = strings.ToLower(strings.TrimSpace(c.RecordStore))
	switch c.RecordStore {
	case RecordStoreSQLite, RecordStorePostgres:
	default:
		return fmt.Errorf("RECORD_STORE must be %q or %q, got %q", RecordStoreSQLite, RecordStorePostgres, c.RecordStore)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.SSEHeartbeat <= 0 || c.SSEIdleTimeout <= 0 || c.SSEWriteTimeout <= 0 {
		return errors.New("SSE timings must be positive")
	}
	return nil
}

// SQLiteFile returns SQLITE_PATH, or orders.db inside cacheDir when unset.
func (c Config) SQLiteFile(cacheDir string) string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(cacheDir, "orders.db")
}

func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
