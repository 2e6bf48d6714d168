//go:build integration

// Package containers starts throwaway service dependencies for integration
// tests (build tag "integration") via testcontainers.
package containers

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a throwaway PostgreSQL instance with the schema
// from migrations/ applied.
type PostgresContainer struct {
	URL  string
	Pool *pgxpool.Pool
}

// NewPostgresContainer starts a PostgreSQL container, applies every
// migrations/*.sql as an init script, and connects a pgx pool. Everything is
// torn down with the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithInitScripts(migrationFiles(t)...),
		postgres.WithDatabase("agora_test"),
		postgres.WithUsername("agora"),
		postgres.WithPassword("agora"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	return &PostgresContainer{URL: url, Pool: pool}
}

// migrationFiles resolves migrations/*.sql relative to this source file, so
// integration tests in any package apply the same schema.
func migrationFiles(t *testing.T) []string {
	t.Helper()

	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate source file for migrations path")
	}
	root := filepath.Join(filepath.Dir(self), "..", "..", "..")

	files, err := filepath.Glob(filepath.Join(root, "migrations", "*.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no migration files found: %v", err)
	}
	sort.Strings(files)
	return files
}
