package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civreg/internal/identity/models"
	"civreg/internal/reconcile"
	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

// PostgresStore persists identities across two tables: an identities row
// carrying the version counter, and one identity_attributes row per stored
// attribute. Execute takes a FOR UPDATE lock on the identities row so
// concurrent change requests to the same identity serialize.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, identity.ID.String(), identity.Version, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	return s.load(ctx, s.pool, identityID, false)
}

// Execute loads the identity under a row lock, runs fn, and persists the
// mutated state in the same transaction when the version advanced. An error
// from fn rolls everything back.
func (s *PostgresStore) Execute(ctx context.Context, identityID id.IdentityID, fn func(*models.Identity) error) (*models.Identity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin identity tx: %w", err)
	}
	defer tx.Rollback(ctx)

	identity, err := s.load(ctx, tx, identityID, true)
	if err != nil {
		return nil, err
	}
	versionBefore := identity.Version

	if err := fn(identity); err != nil {
		return nil, err
	}

	if identity.Version != versionBefore {
		if err := s.save(ctx, tx, identity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit identity tx: %w", err)
	}
	return identity, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) load(ctx context.Context, q querier, identityID id.IdentityID, forUpdate bool) (*models.Identity, error) {
	query := `SELECT id, version, created_at, updated_at FROM identities WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		rawID     string
		identity  models.Identity
		createdAt time.Time
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, identityID.String()).Scan(&rawID, &identity.Version, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select identity: %w", err)
	}

	identity.ID = identityID
	identity.CreatedAt = createdAt
	identity.UpdatedAt = updatedAt
	identity.Attributes = make(map[id.AttributeKey]reconcile.AttributeState)

	rows, err := q.Query(ctx, `
		SELECT key, value, certifier_code, trust_level, expires_at
		FROM identity_attributes
		WHERE identity_id = $1
	`, identityID.String())
	if err != nil {
		return nil, fmt.Errorf("select identity attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key           string
			value         string
			certifierCode *string
			trustLevel    *int
			expiresAt     *time.Time
		)
		if err := rows.Scan(&key, &value, &certifierCode, &trustLevel, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan identity attribute: %w", err)
		}

		state := reconcile.AttributeState{
			Key:   id.AttributeKey(key),
			Value: value,
		}
		if certifierCode != nil && trustLevel != nil {
			state.Certification = &reconcile.Certification{
				CertifierCode: id.CertifierCode(*certifierCode),
				TrustLevel:    *trustLevel,
				ExpiresAt:     expiresAt,
			}
		}
		identity.Attributes[state.Key] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity attributes: %w", err)
	}
	return &identity, nil
}

// save rewrites the attribute rows wholesale. Attribute sets are small (tens
// of rows at most), so replace-all is simpler and no slower than diffing.
func (s *PostgresStore) save(ctx context.Context, tx pgx.Tx, identity *models.Identity) error {
	_, err := tx.Exec(ctx, `
		UPDATE identities SET version = $2, updated_at = $3 WHERE id = $1
	`, identity.ID.String(), identity.Version, identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update identity version: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM identity_attributes WHERE identity_id = $1`, identity.ID.String()); err != nil {
		return fmt.Errorf("clear identity attributes: %w", err)
	}

	for _, state := range identity.Attributes {
		var (
			certifierCode *string
			trustLevel    *int
			expiresAt     *time.Time
		)
		if cert := state.Certification; cert != nil {
			code := cert.CertifierCode.String()
			certifierCode = &code
			trustLevel = &cert.TrustLevel
			expiresAt = cert.ExpiresAt
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO identity_attributes (identity_id, key, value, certifier_code, trust_level, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, identity.ID.String(), state.Key.String(), state.Value, certifierCode, trustLevel, expiresAt)
		if err != nil {
			return fmt.Errorf("insert identity attribute %q: %w", state.Key, err)
		}
	}
	return nil
}
