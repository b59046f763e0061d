package acquisition

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jobmate/acquisition-service/internal/model"
)

// fetchPage calls the fetcher with a per-attempt timeout and retries with
// exponential backoff. Errors wrapped with backoff.Permanent are not retried.
func (c *Controller) fetchPage(ctx context.Context, src model.SourceConfig, page int) ([]model.RawItem, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BaseBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	var items []model.RawItem
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.PageTimeout)
		defer cancel()

		got, err := c.fetcher.FetchPage(attemptCtx, src, page)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		items = got
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "page fetch failed, retrying",
			"page", page, "attempt", attempt, "wait", wait, "err", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return items, nil
}
