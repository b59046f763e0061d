package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/acquisition-service/internal/model"
)

// ErrEmptyProfile is returned when a provider yields no bytes: an empty resume
// would otherwise collapse every user onto the same fingerprint.
var ErrEmptyProfile = errors.New("profile content is empty")

// Registry persists ProfileIdentity rows, creating them lazily.
type Registry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry returns a Registry backed by pool.
func NewRegistry(pool *pgxpool.Pool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{pool: pool, logger: logger.With("component", "profile_registry"), now: time.Now}
}

// Resolve fingerprints the provider's content and registers it if it has not
// been seen before. It returns the stored identity and whether it was new.
func (r *Registry) Resolve(ctx context.Context, p ContentProvider, sourceRef string) (model.ProfileIdentity, bool, error) {
	content, err := p.Content(ctx)
	if err != nil {
		return model.ProfileIdentity{}, false, err
	}
	if len(content) == 0 {
		return model.ProfileIdentity{}, false, fmt.Errorf("%w: %s", ErrEmptyProfile, sourceRef)
	}
	return r.Register(ctx, Fingerprint(content), sourceRef)
}

// Register inserts the fingerprint if absent and returns the stored row.
func (r *Registry) Register(ctx context.Context, fingerprint, sourceRef string) (model.ProfileIdentity, bool, error) {
	var id model.ProfileIdentity
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profile_identities (fingerprint, source_ref, registered_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (fingerprint) DO NOTHING
		 RETURNING fingerprint, source_ref, registered_at`,
		fingerprint, sourceRef, r.now().UTC(),
	).Scan(&id.Fingerprint, &id.SourceRef, &id.RegisteredAt)
	if err == nil {
		r.logger.InfoContext(ctx, "registered new profile version",
			"fingerprint", fingerprint, "source_ref", sourceRef)
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.ProfileIdentity{}, false, fmt.Errorf("register profile: %w", err)
	}

	existing, err := r.Get(ctx, fingerprint)
	if err != nil {
		return model.ProfileIdentity{}, false, err
	}
	return existing, false, nil
}

// Get loads a registered fingerprint.
func (r *Registry) Get(ctx context.Context, fingerprint string) (model.ProfileIdentity, error) {
	var id model.ProfileIdentity
	err := r.pool.QueryRow(ctx,
		`SELECT fingerprint, source_ref, registered_at
		 FROM profile_identities
		 WHERE fingerprint = $1`,
		fingerprint,
	).Scan(&id.Fingerprint, &id.SourceRef, &id.RegisteredAt)
	if err != nil {
		return model.ProfileIdentity{}, fmt.Errorf("get profile %s: %w", fingerprint, err)
	}
	return id, nil
}
