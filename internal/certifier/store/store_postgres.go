// Package store loads certifier reference data from PostgreSQL. The table is
// administratively maintained; this process only ever reads it, once, at
// startup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"civreg/internal/certifier"
	id "civreg/pkg/domain"
)

// PostgresStore reads certifier definitions from the certifiers table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed certifier reference store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListDefinitions returns every registered certifier definition.
func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]certifier.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, trust_level, validity_seconds
		FROM certifiers
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list certifiers: %w", err)
	}
	defer rows.Close()

	var defs []certifier.Definition
	for rows.Next() {
		var (
			code            string
			trustLevel      int
			validitySeconds sql.NullInt64
		)
		if err := rows.Scan(&code, &trustLevel, &validitySeconds); err != nil {
			return nil, fmt.Errorf("scan certifier row: %w", err)
		}
		def := certifier.Definition{Code: id.CertifierCode(code), TrustLevel: trustLevel}
		if validitySeconds.Valid {
			d := time.Duration(validitySeconds.Int64) * time.Second
			def.ValidityDuration = &d
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certifier rows: %w", err)
	}
	return defs, nil
}

// LoadRegistry reads all definitions and builds the immutable registry the
// reconciliation core is constructed with.
func (s *PostgresStore) LoadRegistry(ctx context.Context) (*certifier.Registry, error) {
	defs, err := s.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	return certifier.NewRegistry(defs)
}
