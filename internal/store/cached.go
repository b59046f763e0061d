package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/acquisition-service/internal/model"
)

// Backend is the authoritative store Cached sits in front of.
type Backend interface {
	Exists(ctx context.Context, identity, searchContext, profileIdentity string) (bool, error)
	InsertIfAbsent(ctx context.Context, job model.CapturedJob) (InsertResult, error)
}

// Cached adds a Redis positive cache in front of a Backend. Captured jobs are
// never deleted, so a cached "present" is always true; "absent" is only ever
// answered by the backend. Redis failures degrade to backend-only lookups.
type Cached struct {
	backend Backend
	rdb     redis.UniversalClient
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCached wraps backend. ttl bounds how long an idle scope's set is kept.
func NewCached(backend Backend, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{backend: backend, rdb: rdb, ttl: ttl, logger: logger.With("component", "seen_cache")}
}

// Exists implements the acquisition store contract.
func (c *Cached) Exists(ctx context.Context, identity, searchContext, profileIdentity string) (bool, error) {
	key := seenKey(searchContext, profileIdentity)
	hit, err := c.rdb.SIsMember(ctx, key, identity).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "seen cache lookup failed, falling back to postgres", "err", err)
	} else if hit {
		return true, nil
	}

	exists, err := c.backend.Exists(ctx, identity, searchContext, profileIdentity)
	if err != nil {
		return false, err
	}
	if exists {
		c.remember(ctx, key, identity)
	}
	return exists, nil
}

// InsertIfAbsent always goes to the backend; the cache only learns the outcome.
func (c *Cached) InsertIfAbsent(ctx context.Context, job model.CapturedJob) (InsertResult, error) {
	res, err := c.backend.InsertIfAbsent(ctx, job)
	if err != nil {
		return res, err
	}
	c.remember(ctx, seenKey(job.SearchContext, job.ProfileIdentity), job.Identity)
	return res, nil
}

func (c *Cached) remember(ctx context.Context, key, identity string) {
	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, key, identity)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "seen cache write failed", "err", err)
	}
}

// seenKey hashes the search context so arbitrary user terms stay out of key names.
func seenKey(searchContext, profileIdentity string) string {
	sum := sha256.Sum256([]byte(searchContext))
	return "jobmate:seen:" + profileIdentity + ":" + hex.EncodeToString(sum[:8])
}
