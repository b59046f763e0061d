// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or a value is out of range,
// Load returns an error and the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the acquisition service.
type Config struct {
	HTTPPort    string `env:"ACQUISITION_HTTP_PORT" envDefault:"8081"`
	GRPCPort    string `env:"ACQUISITION_GRPC_PORT" envDefault:"9091"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`

	AdzunaAppID          string `env:"ADZUNA_APP_ID"`
	AdzunaAppKey         string `env:"ADZUNA_APP_KEY"`
	AdzunaCountry        string `env:"ADZUNA_COUNTRY" envDefault:"fr"` // e.g. "fr", "gb", "us"
	AdzunaBaseURL        string `env:"ADZUNA_BASE_URL" envDefault:"https://api.adzuna.com/v1/api/jobs"`
	AdzunaResultsPerPage int    `env:"ADZUNA_RESULTS_PER_PAGE" envDefault:"50"`

	ScrapeIntervalHours int `env:"SCRAPE_INTERVAL_HOURS" envDefault:"6"` // how often the cron job fires
	RunConcurrency      int `env:"RUN_CONCURRENCY" envDefault:"4"`       // search contexts acquired at once

	MaxPages            int           `env:"MAX_PAGES" envDefault:"10"`
	FetchMaxAttempts    int           `env:"FETCH_MAX_ATTEMPTS" envDefault:"3"`
	FetchBaseBackoff    time.Duration `env:"FETCH_BASE_BACKOFF" envDefault:"500ms"`
	FetchMaxBackoff     time.Duration `env:"FETCH_MAX_BACKOFF" envDefault:"5s"`
	PageTimeout         time.Duration `env:"PAGE_TIMEOUT" envDefault:"15s"`
	ClassifyConcurrency int           `env:"CLASSIFY_CONCURRENCY" envDefault:"8"`
	LedgerWriteTimeout  time.Duration `env:"LEDGER_WRITE_TIMEOUT" envDefault:"5s"`

	SeenCacheTTL time.Duration `env:"SEEN_CACHE_TTL" envDefault:"168h"`
	RulesFile    string        `env:"CANONICAL_RULES_FILE"`
	ProfilePath  string        `env:"PROFILE_PATH"` // used when a search config has none

	CostPerRequest    float64 `env:"COST_PER_REQUEST" envDefault:"0.002"`
	CostPerExtraction float64 `env:"COST_PER_EXTRACTION" envDefault:"0.01"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads an optional .env file, then the environment, and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"SCRAPE_INTERVAL_HOURS", c.ScrapeIntervalHours},
		{"RUN_CONCURRENCY", c.RunConcurrency},
		{"MAX_PAGES", c.MaxPages},
		{"FETCH_MAX_ATTEMPTS", c.FetchMaxAttempts},
		{"CLASSIFY_CONCURRENCY", c.ClassifyConcurrency},
		{"ADZUNA_RESULTS_PER_PAGE", c.AdzunaResultsPerPage},
		{"DB_MAX_CONNS", int(c.DBMaxConns)},
	}
	for _, p := range positive {
		if p.v < 1 {
			return fmt.Errorf("%s must be a positive integer, got %d", p.name, p.v)
		}
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("PAGE_TIMEOUT must be positive, got %s", c.PageTimeout)
	}
	if c.FetchMaxBackoff < c.FetchBaseBackoff {
		return fmt.Errorf("FETCH_MAX_BACKOFF (%s) must not be below FETCH_BASE_BACKOFF (%s)", c.FetchMaxBackoff, c.FetchBaseBackoff)
	}
	if c.CostPerRequest < 0 || c.CostPerExtraction < 0 {
		return errors.New("COST_PER_REQUEST and COST_PER_EXTRACTION must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
