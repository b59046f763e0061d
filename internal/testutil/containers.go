// Package testutil starts throwaway Postgres and Redis containers for
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"jobmate/acquisition-service/internal/db"
)

// Env holds live connections to containerised dependencies. A nil field means
// that dependency was not requested or could not be started.
type Env struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client

	containers []testcontainers.Container
}

// Start launches the requested containers, runs migrations on Postgres, and
// returns the connections. Callers must call Close.
func Start(ctx context.Context, withRedis bool) (*Env, error) {
	// ryuk needs a privileged reaper container that CI runners often refuse.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	env := &Env{}
	pgURL, err := env.startPostgres(ctx)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	env.Pool, err = db.NewPostgresPool(ctx, pgURL, 10)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	if err := db.Migrate(ctx, env.Pool, nil); err != nil {
		env.Close(ctx)
		return nil, err
	}

	if withRedis {
		redisURL, err := env.startRedis(ctx)
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
		env.Redis, err = db.NewRedisClient(ctx, redisURL)
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
	}
	return env, nil
}

// Close releases connections and terminates containers.
func (e *Env) Close(ctx context.Context) {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	for _, c := range e.containers {
		_ = c.Terminate(ctx)
	}
}

// Truncate empties the given tables between tests.
func (e *Env) Truncate(ctx context.Context, tables ...string) error {
	for _, t := range tables {
		if _, err := e.Pool.Exec(ctx, "TRUNCATE "+t+" RESTART IDENTITY"); err != nil {
			return fmt.Errorf("truncate %s: %w", t, err)
		}
	}
	if e.Redis != nil {
		return e.Redis.FlushDB(ctx).Err()
	}
	return nil
}

func (e *Env) startPostgres(ctx context.Context) (string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "jobmate",
				"POSTGRES_PASSWORD": "jobmate",
				"POSTGRES_DB":       "jobmate_test",
			},
			// Postgres logs readiness twice: once for the init pass, once for real.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}
	e.containers = append(e.containers, c)

	host, err := hostOf(ctx, c)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return "", fmt.Errorf("postgres mapped port: %w", err)
	}
	return fmt.Sprintf("postgres://jobmate:jobmate@%s:%s/jobmate_test?sslmode=disable", host, port.Port()), nil
}

func (e *Env) startRedis(ctx context.Context) (string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start redis container: %w", err)
	}
	e.containers = append(e.containers, c)

	host, err := hostOf(ctx, c)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return "", fmt.Errorf("redis mapped port: %w", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), nil
}

func hostOf(ctx context.Context, c testcontainers.Container) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	// Some docker setups report "null" for the host.
	if host == "" || host == "null" {
		host = "localhost"
	}
	return host, nil
}
