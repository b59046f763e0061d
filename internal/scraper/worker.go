package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"jobmate/acquisition-service/internal/acquisition"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/profile"
)

// EventJobsDiscovered is the Redis channel announcing freshly captured jobs.
const EventJobsDiscovered = "EVENT_JOBS_DISCOVERED"

// ErrNoProfile is returned when neither the search config nor the service
// names a profile file.
var ErrNoProfile = errors.New("no profile configured")

// Runner executes one acquisition run.
type Runner interface {
	Run(ctx context.Context, req acquisition.RunRequest) (*acquisition.RunResult, error)
}

// ProfileResolver turns profile content into a registered fingerprint.
type ProfileResolver interface {
	Resolve(ctx context.Context, p profile.ContentProvider, sourceRef string) (model.ProfileIdentity, bool, error)
}

// Publisher is the slice of the Redis client the worker needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// WorkerOptions holds service-wide defaults.
type WorkerOptions struct {
	Country            string
	MaxPages           int
	DefaultProfilePath string
	RunConcurrency     int // search contexts of one config acquired at once
}

// DiscoveredEvent is published on EventJobsDiscovered after a run that
// captured at least one job passing the red-flag filter.
type DiscoveredEvent struct {
	Type            string   `json:"type"`
	SearchConfigID  string   `json:"searchConfigId"`
	UserID          string   `json:"userId"`
	RunID           string   `json:"runId"`
	SearchContext   string   `json:"searchContext"`
	ProfileIdentity string   `json:"profileIdentity"`
	StoppedReason   string   `json:"stoppedReason"`
	JobIdentities   []string `json:"jobIdentities"`
	FilteredCount   int      `json:"filteredCount"`
}

// CycleSummary tallies one Worker.Run.
type CycleSummary struct {
	Runs          int
	NewJobs       int
	Flagged       int
	Duplicates    int
	FetchFailures int
}

// Worker runs the acquisition cycle for a single SearchConfig: it resolves the
// profile fingerprint, runs one acquisition per (title × location) search
// context, drops red-flagged offers from the announcement, and publishes the
// rest.
type Worker struct {
	runner   Runner
	profiles ProfileResolver
	pub      Publisher
	opts     WorkerOptions
	logger   *slog.Logger
}

// NewWorker constructs a Worker. pub may be nil to disable events.
func NewWorker(runner Runner, profiles ProfileResolver, pub Publisher, opts WorkerOptions, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RunConcurrency < 1 {
		opts.RunConcurrency = 1
	}
	return &Worker{
		runner:   runner,
		profiles: profiles,
		pub:      pub,
		opts:     opts,
		logger:   logger.With("component", "worker"),
	}
}

// Run executes one cycle for cfg. Fetch failures of single search contexts
// are logged and the cycle continues; a store failure aborts it.
func (w *Worker) Run(ctx context.Context, cfg model.SearchConfig) (CycleSummary, error) {
	log := w.logger.With("config_id", cfg.ID, "user_id", cfg.UserID)

	path := cfg.ProfilePath
	if path == "" {
		path = w.opts.DefaultProfilePath
	}
	if path == "" {
		return CycleSummary{}, fmt.Errorf("config %s: %w", cfg.ID, ErrNoProfile)
	}
	pid, created, err := w.profiles.Resolve(ctx, profile.FileProvider{Path: path}, path)
	if err != nil {
		return CycleSummary{}, fmt.Errorf("resolve profile for config %s: %w", cfg.ID, err)
	}
	if created {
		log.InfoContext(ctx, "profile changed, dedup history starts fresh", "fingerprint", pid.Fingerprint)
	}

	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = w.opts.MaxPages
	}

	sources := cfg.SearchContexts(w.opts.Country)
	log.InfoContext(ctx, "starting acquisition cycle",
		"titles", cfg.JobTitles, "locations", cfg.Locations, "contexts", len(sources))

	var (
		mu      sync.Mutex
		summary CycleSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.RunConcurrency)
	for _, src := range sources {
		g.Go(func() error {
			res, err := w.runner.Run(gctx, acquisition.RunRequest{
				ProfileIdentity: pid.Fingerprint,
				Source:          src,
				MaxPages:        maxPages,
			})
			if err != nil {
				return fmt.Errorf("search %q: %w", src.SearchContext(), err)
			}

			kept, flagged := FilterRedFlags(res.NewItems, cfg.RedFlags)
			w.announce(ctx, cfg, res, kept, len(flagged))

			mu.Lock()
			defer mu.Unlock()
			summary.Runs++
			summary.NewJobs += len(kept)
			summary.Flagged += len(flagged)
			summary.Duplicates += res.DuplicateCount
			if res.StoppedReason == acquisition.StopFetchFailure {
				summary.FetchFailures++
				log.WarnContext(ctx, "search context stopped on fetch failure, continuing",
					"search_context", res.SearchContext, "err", res.Err)
			}
			return nil
		})
	}
	err = g.Wait()

	log.InfoContext(ctx, "acquisition cycle done",
		"runs", summary.Runs, "new", summary.NewJobs, "flagged", summary.Flagged,
		"duplicates", summary.Duplicates, "fetch_failures", summary.FetchFailures)
	return summary, err
}

// announce publishes a DiscoveredEvent. Publishing is best effort.
func (w *Worker) announce(ctx context.Context, cfg model.SearchConfig, res *acquisition.RunResult, kept []model.CapturedJob, flagged int) {
	if w.pub == nil || len(kept) == 0 {
		return
	}
	ids := make([]string, len(kept))
	for i, j := range kept {
		ids[i] = j.Identity
	}
	event, err := json.Marshal(DiscoveredEvent{
		Type:            EventJobsDiscovered,
		SearchConfigID:  cfg.ID,
		UserID:          cfg.UserID,
		RunID:           res.RunID,
		SearchContext:   res.SearchContext,
		ProfileIdentity: res.ProfileIdentity,
		StoppedReason:   string(res.StoppedReason),
		JobIdentities:   ids,
		FilteredCount:   flagged,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "marshal "+EventJobsDiscovered+" failed", "run_id", res.RunID, "err", err)
		return
	}
	if err := w.pub.Publish(ctx, EventJobsDiscovered, event).Err(); err != nil {
		w.logger.WarnContext(ctx, "publish "+EventJobsDiscovered+" failed", "err", err)
	}
}

const searchConfigColumns = `id::text, user_id, job_titles, locations, red_flags, profile_path, max_pages`

// LoadActiveConfigs fetches all is_active = true search configs from the DB.
func LoadActiveConfigs(ctx context.Context, pool *pgxpool.Pool) ([]model.SearchConfig, error) {
	rows, err := pool.Query(ctx,
		`SELECT `+searchConfigColumns+`
		 FROM search_configs
		 WHERE is_active = true
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query search_configs: %w", err)
	}
	defer rows.Close()

	var configs []model.SearchConfig
	for rows.Next() {
		c, err := scanSearchConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// LoadConfig fetches one search config by id, active or not.
func LoadConfig(ctx context.Context, pool *pgxpool.Pool, id string) (model.SearchConfig, error) {
	c, err := scanSearchConfig(pool.QueryRow(ctx,
		`SELECT `+searchConfigColumns+` FROM search_configs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SearchConfig{}, fmt.Errorf("search config %s not found", id)
	}
	return c, err
}

func scanSearchConfig(row pgx.Row) (model.SearchConfig, error) {
	var c model.SearchConfig
	if err := row.Scan(&c.ID, &c.UserID, &c.JobTitles, &c.Locations, &c.RedFlags, &c.ProfilePath, &c.MaxPages); err != nil {
		return model.SearchConfig{}, fmt.Errorf("scan search config: %w", err)
	}
	return c, nil
}
