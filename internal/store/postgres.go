package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/acquisition-service/internal/model"
)

// Postgres keeps captured jobs in the captured_jobs table. Uniqueness of the
// composite key is enforced by the captured_jobs_composite_key constraint.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Exists reports whether the composite key is already captured.
func (s *Postgres) Exists(ctx context.Context, identity, searchContext, profileIdentity string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM captured_jobs
		   WHERE identity = $1 AND search_context = $2 AND profile_identity = $3
		 )`,
		identity, searchContext, profileIdentity,
	).Scan(&exists)
	if err != nil {
		return false, &Error{Op: "exists", Err: err}
	}
	return exists, nil
}

// InsertIfAbsent stores job unless its composite key is already present.
// Concurrent callers racing on the same key get exactly one Inserted.
func (s *Postgres) InsertIfAbsent(ctx context.Context, job model.CapturedJob) (InsertResult, error) {
	capturedAt := job.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO captured_jobs
		   (identity, search_context, profile_identity, title, company, raw_payload, score_data, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8)
		 ON CONFLICT ON CONSTRAINT captured_jobs_composite_key DO NOTHING`,
		job.Identity, job.SearchContext, job.ProfileIdentity, job.Title, job.Company,
		nullableJSON(job.RawPayload), nullableJSON(job.ScoreData), capturedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return AlreadyExists, nil
		}
		return 0, &Error{Op: "insert", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// nullableJSON maps an empty payload to SQL NULL so the ::jsonb cast does not
// fail on an empty string.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
