package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/store"
)

func job(identity, searchContext, profile string) model.CapturedJob {
	return model.CapturedJob{
		Identity:        identity,
		SearchContext:   searchContext,
		ProfileIdentity: profile,
		Title:           "Backend Engineer",
		Company:         "Acme",
		RawPayload:      json.RawMessage(`{"id":"1"}`),
		CapturedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func capturedRow(t *testing.T, pool *pgxpool.Pool, identity, searchContext, profile string) model.CapturedJob {
	t.Helper()
	var j model.CapturedJob
	err := pool.QueryRow(context.Background(),
		`SELECT identity, search_context, profile_identity, title, company, raw_payload, captured_at
		 FROM captured_jobs
		 WHERE identity = $1 AND search_context = $2 AND profile_identity = $3`,
		identity, searchContext, profile,
	).Scan(&j.Identity, &j.SearchContext, &j.ProfileIdentity, &j.Title, &j.Company, &j.RawPayload, &j.CapturedAt)
	require.NoError(t, err)
	return j
}

func capturedCount(t *testing.T, pool *pgxpool.Pool, searchContext, profile string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM captured_jobs WHERE search_context = $1 AND profile_identity = $2`,
		searchContext, profile,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPostgres_InsertThenExists(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	s := store.NewPostgres(env.Pool)

	exists, err := s.Exists(ctx, "https://www.example.com/jobs/1", "go developer", "fp1")
	require.NoError(t, err)
	assert.False(t, exists)

	res, err := s.InsertIfAbsent(ctx, job("https://www.example.com/jobs/1", "go developer", "fp1"))
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, res)

	exists, err = s.Exists(ctx, "https://www.example.com/jobs/1", "go developer", "fp1")
	require.NoError(t, err)
	assert.True(t, exists)

	got := capturedRow(t, env.Pool, "https://www.example.com/jobs/1", "go developer", "fp1")
	assert.Equal(t, "Acme", got.Company)
	assert.JSONEq(t, `{"id":"1"}`, string(got.RawPayload))
}

func TestPostgres_SecondInsertIsAlreadyExists(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	s := store.NewPostgres(env.Pool)

	j := job("https://www.example.com/jobs/2", "go developer", "fp1")
	res, err := s.InsertIfAbsent(ctx, j)
	require.NoError(t, err)
	require.Equal(t, store.Inserted, res)

	res, err = s.InsertIfAbsent(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyExists, res)

	assert.Equal(t, 1, capturedCount(t, env.Pool, "go developer", "fp1"))
}

func TestPostgres_ScopesAreIndependent(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	s := store.NewPostgres(env.Pool)
	id := "https://www.example.com/jobs/3"

	for _, scope := range [][2]string{
		{"go developer", "fp1"},
		{"rust developer", "fp1"},
		{"go developer", "fp2"},
	} {
		res, err := s.InsertIfAbsent(ctx, job(id, scope[0], scope[1]))
		require.NoError(t, err)
		assert.Equal(t, store.Inserted, res, "scope %v", scope)
	}

	exists, err := s.Exists(ctx, id, "python developer", "fp1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostgres_ConcurrentInsertsYieldOneInserted(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	s := store.NewPostgres(env.Pool)

	const workers = 16
	j := job("https://www.example.com/jobs/race", "go developer", "fp1")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		existed  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.InsertIfAbsent(ctx, j)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case store.Inserted:
				inserted++
			case store.AlreadyExists:
				existed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, workers-1, existed)
}

func TestPostgres_UnavailableOnCancelledContext(t *testing.T) {
	env := requireEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := store.NewPostgres(env.Pool)

	_, err := s.Exists(ctx, "https://www.example.com/jobs/1", "go developer", "fp1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestPostgres_UnavailableAfterClose(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()

	pool, err := pgxpool.NewWithConfig(ctx, env.Pool.Config())
	require.NoError(t, err)
	pool.Close()
	s := store.NewPostgres(pool)

	_, err = s.Exists(ctx, "https://www.example.com/jobs/1", "go developer", "fp1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = s.InsertIfAbsent(ctx, job("https://www.example.com/jobs/1", "go developer", "fp1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestCached_RemembersPositives(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	backend := store.NewPostgres(env.Pool)
	cached := store.NewCached(backend, env.Redis, time.Hour, nil)

	for i := 0; i < 3; i++ {
		res, err := cached.InsertIfAbsent(ctx, job(fmt.Sprintf("https://www.example.com/jobs/c%d", i), "go developer", "fp1"))
		require.NoError(t, err)
		require.Equal(t, store.Inserted, res)
	}

	keys, err := env.Redis.Keys(ctx, "jobmate:seen:fp1:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	members, err := env.Redis.SMembers(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Len(t, members, 3)

	exists, err := cached.Exists(ctx, "https://www.example.com/jobs/c1", "go developer", "fp1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = cached.Exists(ctx, "https://www.example.com/jobs/unknown", "go developer", "fp1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCached_WarmsFromBackend(t *testing.T) {
	env := requireEnv(t)
	ctx := context.Background()
	backend := store.NewPostgres(env.Pool)

	_, err := backend.InsertIfAbsent(ctx, job("https://www.example.com/jobs/warm", "go developer", "fp1"))
	require.NoError(t, err)

	cached := store.NewCached(backend, env.Redis, time.Hour, nil)
	exists, err := cached.Exists(ctx, "https://www.example.com/jobs/warm", "go developer", "fp1")
	require.NoError(t, err)
	assert.True(t, exists)

	keys, err := env.Redis.Keys(ctx, "jobmate:seen:fp1:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
