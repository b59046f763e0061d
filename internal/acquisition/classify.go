package acquisition

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/store"
)

type verdict int

const (
	verdictInvalid verdict = iota
	verdictDuplicate
	verdictNew
)

type classified struct {
	verdict verdict
	job     model.CapturedJob
}

// classifyPage sorts a page into new, duplicate and invalid items. Items are
// checked concurrently; results keep page order. A store failure does not
// cancel its siblings: every item finishes, so each committed insert is
// reported in the returned jobs alongside the first error.
func (c *Controller) classifyPage(ctx context.Context, req RunRequest, items []model.RawItem) ([]model.CapturedJob, PageStats, error) {
	results := make([]classified, len(items))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			r, err := c.classifyItem(ctx, req, item)
			results[i] = r
			return err
		})
	}
	err := g.Wait()

	stats := PageStats{ItemsSeen: len(items)}
	var fresh []model.CapturedJob
	for _, r := range results {
		switch r.verdict {
		case verdictNew:
			stats.New++
			fresh = append(fresh, r.job)
		case verdictDuplicate:
			stats.Duplicate++
		default:
			stats.Invalid++
		}
	}
	return fresh, stats, err
}

func (c *Controller) classifyItem(ctx context.Context, req RunRequest, item model.RawItem) (classified, error) {
	id, err := c.normalizer.Normalize(item.URL)
	if err != nil {
		c.logger.DebugContext(ctx, "skipping item with unusable url", "url", item.URL, "err", err)
		return classified{verdict: verdictInvalid}, nil
	}

	exists, err := c.store.Exists(ctx, id, req.SearchContext, req.ProfileIdentity)
	if err != nil {
		return classified{}, storeErr(err)
	}
	if exists {
		return classified{verdict: verdictDuplicate}, nil
	}

	job, err := model.NewCapturedJob(id, req.SearchContext, req.ProfileIdentity, item, c.now())
	if err != nil {
		c.logger.DebugContext(ctx, "skipping invalid item", "identity", id, "err", err)
		return classified{verdict: verdictInvalid}, nil
	}

	res, err := c.store.InsertIfAbsent(ctx, job)
	if err != nil {
		return classified{}, storeErr(err)
	}
	if res == store.AlreadyExists {
		return classified{verdict: verdictDuplicate}, nil
	}
	return classified{verdict: verdictNew, job: job}, nil
}

// storeErr makes sure any failure from the store matches store.ErrUnavailable.
func storeErr(err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}
