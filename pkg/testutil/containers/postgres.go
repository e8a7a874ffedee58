//go:build integration

// Package containers starts throwaway infrastructure for integration tests.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with both
// connection flavors the service uses.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	Pool      *pgxpool.Pool
	DB        *sql.DB
}

// NewPostgresContainer starts PostgreSQL and applies the registry schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("civreg"),
		tcpostgres.WithUsername("civreg"),
		tcpostgres.WithPassword("civreg"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open pgx pool: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open sql db: %v", err)
	}

	pc := &PostgresContainer{Container: container, URL: url, Pool: pool, DB: db}
	if err := pc.applySchema(ctx); err != nil {
		pc.Close(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() { pc.Close(context.Background()) })
	return pc
}

func (p *PostgresContainer) applySchema(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS certifiers (
			code             TEXT PRIMARY KEY,
			trust_level      INT NOT NULL,
			validity_seconds BIGINT
		);

		CREATE TABLE IF NOT EXISTS identities (
			id         UUID PRIMARY KEY,
			version    BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS identity_attributes (
			identity_id    UUID NOT NULL REFERENCES identities (id) ON DELETE CASCADE,
			key            TEXT NOT NULL,
			value          TEXT NOT NULL,
			certifier_code TEXT,
			trust_level    INT,
			expires_at     TIMESTAMPTZ,
			PRIMARY KEY (identity_id, key)
		);

		CREATE TABLE IF NOT EXISTS audit_outbox (
			id          UUID PRIMARY KEY,
			category    TEXT NOT NULL,
			identity_id TEXT NOT NULL,
			payload     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			sent_at     TIMESTAMPTZ
		);
	`)
	return err
}

// Close releases both connections and the container.
func (p *PostgresContainer) Close(ctx context.Context) {
	if p.DB != nil {
		_ = p.DB.Close()
	}
	if p.Pool != nil {
		p.Pool.Close()
	}
	if p.Container != nil {
		_ = p.Container.Terminate(ctx)
	}
}
