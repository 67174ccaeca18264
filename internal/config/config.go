package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"tubewatch"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"tubewatch"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NSQLookupd     string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost       string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP       string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxAttempts uint16 `envconfig:"NSQ_MAX_ATTEMPTS" default:"5"`

	EnableAPI              bool   `envconfig:"ENABLE_API" default:"true"`
	EnableResolverWorker   bool   `envconfig:"ENABLE_RESOLVER_WORKER" default:"true"`
	EnableDeadLetterWorker bool   `envconfig:"ENABLE_DEADLETTER_WORKER" default:"true"`
	ResolverConcurrency    int    `envconfig:"RESOLVER_CONCURRENCY" default:"10"`
	MigrationPath          string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// YouTube Data API key. Seeds the settings table; lookups fail per job while it is unset.
	YouTubeAPIKey         string `envconfig:"YOUTUBE_API_KEY"`
	ResolveTimeoutSeconds int    `envconfig:"RESOLVE_TIMEOUT_SECONDS" default:"30"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("%w: REDIS_ADDR", ErrMissingRequired)
	}
	if c.NSQDHost == "" {
		return fmt.Errorf("%w: NSQD_HOST", ErrMissingRequired)
	}
	if c.ResolverConcurrency < 1 {
		return fmt.Errorf("RESOLVER_CONCURRENCY must be positive, got %d", c.ResolverConcurrency)
	}
	return nil
}
