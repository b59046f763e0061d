// Package acquisition runs incremental, page-by-page acquisition for one
// search context and profile version, stopping as soon as a page holds
// nothing new.
package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jobmate/acquisition-service/internal/identity"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/store"
)

// PageFetcher returns the raw items of one result page. An empty slice means
// the source has no more results.
type PageFetcher interface {
	FetchPage(ctx context.Context, src model.SourceConfig, page int) ([]model.RawItem, error)
}

// ExistenceStore answers and records composite-key membership.
type ExistenceStore interface {
	Exists(ctx context.Context, identity, searchContext, profileIdentity string) (bool, error)
	InsertIfAbsent(ctx context.Context, job model.CapturedJob) (store.InsertResult, error)
}

// Ledger receives one entry per page.
type Ledger interface {
	Append(ctx context.Context, e model.LedgerEntry) error
}

// Options tunes fetch retries and classification.
type Options struct {
	MaxAttempts   int           // fetch attempts per page, including the first
	BaseBackoff   time.Duration // wait before the first retry
	MaxBackoff    time.Duration
	PageTimeout   time.Duration // per fetch attempt
	Concurrency   int           // items classified in parallel on one page
	LedgerTimeout time.Duration // bound on a single ledger write
}

// DefaultOptions are used for any zero field.
var DefaultOptions = Options{
	MaxAttempts:   3,
	BaseBackoff:   500 * time.Millisecond,
	MaxBackoff:    5 * time.Second,
	PageTimeout:   20 * time.Second,
	Concurrency:   8,
	LedgerTimeout: 5 * time.Second,
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultOptions.BaseBackoff
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = max(DefaultOptions.MaxBackoff, o.BaseBackoff)
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = DefaultOptions.PageTimeout
	}
	if o.Concurrency < 1 {
		o.Concurrency = DefaultOptions.Concurrency
	}
	if o.LedgerTimeout <= 0 {
		o.LedgerTimeout = DefaultOptions.LedgerTimeout
	}
	return o
}

// Controller drives acquisition runs. It is safe for concurrent use; each Run
// is independent.
type Controller struct {
	fetcher    PageFetcher
	store      ExistenceStore
	ledger     Ledger
	normalizer *identity.Normalizer
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewController wires a controller. ledger may be nil to skip bookkeeping.
func NewController(fetcher PageFetcher, st ExistenceStore, ledger Ledger, normalizer *identity.Normalizer, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		fetcher:    fetcher,
		store:      st,
		ledger:     ledger,
		normalizer: normalizer,
		opts:       opts.withDefaults(),
		logger:     logger.With("component", "acquisition"),
		now:        time.Now,
	}
}

// Run paginates the source until a stop condition is met and returns the jobs
// it newly captured. The returned error is non-nil only for an invalid request
// or a store failure; fetch failures and cancellation are reported through
// the result.
//
// Cancellation is checked between pages. A page that has been fetched is
// always classified and recorded in full.
func (c *Controller) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.SearchContext == "" {
		req.SearchContext = req.Source.SearchContext()
	}
	switch {
	case req.SearchContext == "":
		return nil, fmt.Errorf("%w: search context is required", ErrInvalidRequest)
	case req.ProfileIdentity == "":
		return nil, fmt.Errorf("%w: profile identity is required", ErrInvalidRequest)
	case req.MaxPages < 1:
		return nil, fmt.Errorf("%w: max pages must be >= 1, got %d", ErrInvalidRequest, req.MaxPages)
	}

	res := &RunResult{
		RunID:           uuid.NewString(),
		SearchContext:   req.SearchContext,
		ProfileIdentity: req.ProfileIdentity,
	}
	log := c.logger.With("run_id", res.RunID, "search_context", req.SearchContext, "profile", req.ProfileIdentity)
	log.InfoContext(ctx, "acquisition run started", "max_pages", req.MaxPages)

	// Classification and ledger writes must finish even if ctx is cancelled
	// mid-page, so they run on a context that only carries ctx's values.
	detached := context.WithoutCancel(ctx)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			res.StoppedReason, res.Err = StopCanceled, err
			break
		}

		started := c.now()
		items, err := c.fetchPage(ctx, req.Source, page)
		if err != nil {
			if ctx.Err() != nil {
				res.StoppedReason, res.Err = StopCanceled, ctx.Err()
				break
			}
			res.StoppedReason, res.Err = StopFetchFailure, fmt.Errorf("fetch page %d: %w", page, err)
			c.record(detached, log, model.LedgerEntry{
				RunID:           res.RunID,
				SearchContext:   req.SearchContext,
				ProfileIdentity: req.ProfileIdentity,
				PageNumber:      page,
				Outcome:         model.PageFetchFailed,
				StopReason:      string(StopFetchFailure),
				MaxPages:        req.MaxPages,
				StartedAt:       started,
				DurationMs:      c.now().Sub(started).Milliseconds(),
			})
			log.ErrorContext(ctx, "page fetch failed, stopping run", "page", page, "err", err)
			break
		}

		fresh, stats, err := c.classifyPage(detached, req, items)
		res.NewItems = append(res.NewItems, fresh...)
		if err != nil {
			res.StoppedReason, res.Err = StopStoreFailure, fmt.Errorf("classify page %d: %w", page, err)
			log.ErrorContext(ctx, "existence store failed, aborting run", "page", page, "err", err)
			return res, res.Err
		}
		res.DuplicateCount += stats.Duplicate
		res.InvalidCount += stats.Invalid
		res.CompletedPages = page

		reason := decide(stats, page, req.MaxPages)
		c.record(detached, log, model.LedgerEntry{
			RunID:           res.RunID,
			SearchContext:   req.SearchContext,
			ProfileIdentity: req.ProfileIdentity,
			PageNumber:      page,
			ItemsSeen:       stats.ItemsSeen,
			NewCount:        stats.New,
			DuplicateCount:  stats.Duplicate,
			InvalidCount:    stats.Invalid,
			Outcome:         model.PageOK,
			StopReason:      string(reason),
			MaxPages:        req.MaxPages,
			StartedAt:       started,
			DurationMs:      c.now().Sub(started).Milliseconds(),
		})
		log.DebugContext(ctx, "page classified",
			"page", page, "items", stats.ItemsSeen, "new", stats.New,
			"duplicates", stats.Duplicate, "invalid", stats.Invalid)

		if reason != "" {
			res.StoppedReason = reason
			break
		}
	}

	log.InfoContext(ctx, "acquisition run finished",
		"stopped_reason", res.StoppedReason,
		"pages", res.CompletedPages,
		"new", len(res.NewItems),
		"duplicates", res.DuplicateCount,
		"invalid", res.InvalidCount)
	return res, nil
}

// ExistsForContext reports whether a posting is already captured for the
// search context and profile. url may be raw or already normalized.
func (c *Controller) ExistsForContext(ctx context.Context, url, searchContext, profileIdentity string) (bool, error) {
	id, err := c.normalizer.Normalize(url)
	if err != nil {
		return false, err
	}
	return c.store.Exists(ctx, id, searchContext, profileIdentity)
}

// record appends a ledger entry. Failures are logged and never fail the run.
func (c *Controller) record(ctx context.Context, log *slog.Logger, e model.LedgerEntry) {
	if c.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.LedgerTimeout)
	defer cancel()
	if err := c.ledger.Append(ctx, e); err != nil {
		log.WarnContext(ctx, "ledger write failed", "page", e.PageNumber, "err", err)
	}
}
