package ledger

import (
	"context"
	"fmt"
	"time"
)

// Costs prices the work the early-exit rule avoids.
type Costs struct {
	PerRequest    float64 // one page fetch
	PerExtraction float64 // downstream processing of one item
}

// SavingsQuery selects the ledger window to report on. Empty SearchContext
// means every context.
type SavingsQuery struct {
	SearchContext string
	Since         time.Time
}

// SavingsReport summarises how much fetching and extraction was avoided.
type SavingsReport struct {
	Runs              int     `json:"runs"`
	PagesFetched      int     `json:"pagesFetched"`
	PagesAvoided      int     `json:"pagesAvoided"`
	ItemsSeen         int     `json:"itemsSeen"`
	NewItems          int     `json:"newItems"`
	DuplicatesSkipped int     `json:"duplicatesSkipped"`
	FailedPages       int     `json:"failedPages"`
	EstimatedSavings  float64 `json:"estimatedSavings"`
}

// Compute fills EstimatedSavings from the counters.
func (r *SavingsReport) Compute(c Costs) {
	r.EstimatedSavings = float64(r.PagesAvoided)*c.PerRequest + float64(r.DuplicatesSkipped)*c.PerExtraction
}

// Savings aggregates the ledger. Pages avoided are the unfetched remainder of
// the page budget on runs that stopped early. A run stopped by an empty page
// avoided nothing: the source had no more pages to fetch.
func (l *Postgres) Savings(ctx context.Context, q SavingsQuery, costs Costs) (SavingsReport, error) {
	var r SavingsReport
	err := l.pool.QueryRow(ctx,
		`SELECT
		   COUNT(DISTINCT run_id),
		   COUNT(*) FILTER (WHERE outcome = 'OK'),
		   COALESCE(SUM(max_pages - page_number) FILTER (WHERE stop_reason = 'EARLY_EXIT'), 0),
		   COALESCE(SUM(items_seen), 0),
		   COALESCE(SUM(new_count), 0),
		   COALESCE(SUM(duplicate_count), 0),
		   COUNT(*) FILTER (WHERE outcome <> 'OK')
		 FROM acquisition_ledger
		 WHERE ($1 = '' OR search_context = $1)
		   AND started_at >= $2`,
		q.SearchContext, q.Since.UTC(),
	).Scan(&r.Runs, &r.PagesFetched, &r.PagesAvoided, &r.ItemsSeen, &r.NewItems,
		&r.DuplicatesSkipped, &r.FailedPages)
	if err != nil {
		return SavingsReport{}, fmt.Errorf("savings query: %w", err)
	}
	r.Compute(costs)
	return r, nil
}
