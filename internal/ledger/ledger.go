// Package ledger records per-page acquisition outcomes for observability and
// savings reporting. Entries are append-only; nothing here reads them back for
// decision-making.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/acquisition-service/internal/model"
)

// Postgres appends ledger entries to the acquisition_ledger table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a ledger writer.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Append inserts one entry. Callers bound it through ctx.
func (l *Postgres) Append(ctx context.Context, e model.LedgerEntry) error {
	if e.RunID == "" || e.PageNumber < 1 {
		return errors.New("ledger entry needs a run id and a page number >= 1")
	}

	var stopReason *string
	if e.StopReason != "" {
		stopReason = &e.StopReason
	}

	_, err := l.pool.Exec(ctx,
		`INSERT INTO acquisition_ledger
		   (run_id, search_context, profile_identity, page_number, items_seen, new_count,
		    duplicate_count, invalid_count, outcome, stop_reason, max_pages, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.RunID, e.SearchContext, e.ProfileIdentity, e.PageNumber, e.ItemsSeen, e.NewCount,
		e.DuplicateCount, e.InvalidCount, string(e.Outcome), stopReason, e.MaxPages,
		e.StartedAt.UTC(), e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry (run %s page %d): %w", e.RunID, e.PageNumber, err)
	}
	return nil
}

// Entries returns a run's entries in page order. An unknown run yields none.
func (l *Postgres) Entries(ctx context.Context, runID string) ([]model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT run_id::text, search_context, profile_identity, page_number, items_seen, new_count,
		        duplicate_count, invalid_count, outcome, COALESCE(stop_reason, ''), max_pages,
		        started_at, duration_ms
		 FROM acquisition_ledger
		 WHERE run_id = $1
		 ORDER BY page_number`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var outcome string
		if err := rows.Scan(
			&e.RunID, &e.SearchContext, &e.ProfileIdentity, &e.PageNumber, &e.ItemsSeen, &e.NewCount,
			&e.DuplicateCount, &e.InvalidCount, &outcome, &e.StopReason, &e.MaxPages,
			&e.StartedAt, &e.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		e.Outcome = model.PageOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
