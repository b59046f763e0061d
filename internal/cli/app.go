package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/acquisition-service/internal/acquisition"
	"jobmate/acquisition-service/internal/config"
	"jobmate/acquisition-service/internal/db"
	"jobmate/acquisition-service/internal/identity"
	"jobmate/acquisition-service/internal/ledger"
	"jobmate/acquisition-service/internal/profile"
	"jobmate/acquisition-service/internal/scraper"
	"jobmate/acquisition-service/internal/store"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool *pgxpool.Pool
	rdb  *redis.Client

	normalizer *identity.Normalizer
	ledger     *ledger.Postgres
	registry   *profile.Registry
	fetcher    *scraper.AdzunaFetcher
	controller *acquisition.Controller
	worker     *scraper.Worker
}

// newApp connects to Postgres and Redis and wires every component.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	logger.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.pool = pool

	logger.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb

	rules := identity.DefaultRules()
	if cfg.RulesFile != "" {
		rules, err = identity.LoadRules(cfg.RulesFile)
		if err != nil {
			a.close()
			return nil, err
		}
	}
	a.normalizer = identity.NewNormalizer(rules)

	existence := store.NewCached(store.NewPostgres(pool), rdb, cfg.SeenCacheTTL, logger)
	a.ledger = ledger.NewPostgres(pool)
	a.registry = profile.NewRegistry(pool, logger)

	a.fetcher = scraper.NewAdzunaFetcher(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry, logger)
	a.fetcher.BaseURL = cfg.AdzunaBaseURL
	a.fetcher.PageSize = cfg.AdzunaResultsPerPage

	a.controller = acquisition.NewController(a.fetcher, existence, a.ledger, a.normalizer, acquisition.Options{
		MaxAttempts:   cfg.FetchMaxAttempts,
		BaseBackoff:   cfg.FetchBaseBackoff,
		MaxBackoff:    cfg.FetchMaxBackoff,
		PageTimeout:   cfg.PageTimeout,
		Concurrency:   cfg.ClassifyConcurrency,
		LedgerTimeout: cfg.LedgerWriteTimeout,
	}, logger)

	a.worker = scraper.NewWorker(a.controller, a.registry, rdb, scraper.WorkerOptions{
		Country:            cfg.AdzunaCountry,
		MaxPages:           cfg.MaxPages,
		DefaultProfilePath: cfg.ProfilePath,
		RunConcurrency:     cfg.RunConcurrency,
	}, logger)

	return a, nil
}

func (a *app) costs() ledger.Costs {
	return ledger.Costs{PerRequest: a.cfg.CostPerRequest, PerExtraction: a.cfg.CostPerExtraction}
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
