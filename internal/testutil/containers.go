// Package testutil starts the Postgres and Redis instances integration tests
// run against. TEST_DATABASE_URL and TEST_REDIS_ADDR point at existing
// servers; otherwise containers are started, and tests are skipped when no
// container runtime is available.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ferremas/orders/migrations"
)

// Containers are shared by every test of a package run and reaped by the
// testcontainers reaper when the process exits.
var (
	pgOnce    sync.Once
	pgDSN     string
	pgSkip    string
	redisOnce sync.Once
	redisAddr string
	redisSkip string
)

// Postgres returns a pool on a migrated, emptied database.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		pgOnce.Do(func() { pgDSN, pgSkip = startPostgres(ctx) })
		if pgSkip != "" {
			t.Skip(pgSkip)
		}
		dsn = pgDSN
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE payments, order_lines, orders, branch_stock, products, branches RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func startPostgres(ctx context.Context) (dsn, skip string) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ferremas",
				"POSTGRES_PASSWORD": "secret",
				"POSTGRES_DB":       "ferremas",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Sprintf("postgres container unavailable: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Sprintf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return "", fmt.Sprintf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://ferremas:secret@%s:%s/ferremas?sslmode=disable", host, port.Port()), ""
}

// Redis returns a client on an emptied Redis database.
func Redis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		redisOnce.Do(func() { redisAddr, redisSkip = startRedis(ctx) })
		if redisSkip != "" {
			t.Skip(redisSkip)
		}
		addr = redisAddr
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return rdb
}

func startRedis(ctx context.Context) (addr, skip string) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Sprintf("redis container unavailable: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Sprintf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return "", fmt.Sprintf("container port: %v", err)
	}
	return host + ":" + port.Port(), ""
}
