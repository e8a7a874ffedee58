package store

import (
	"context"
	"fmt"
	"time"

	"civreg/internal/certifier"
)

// SeedDefinitions is the default certifier table for local development and
// tests: a never-expiring civil-status authority, two dated document
// verifiers, and self-declaration at the bottom of the trust ladder.
func SeedDefinitions() []certifier.Definition {
	year := 365 * 24 * time.Hour
	quarter := 90 * 24 * time.Hour
	return []certifier.Definition{
		{Code: "civil_status", TrustLevel: 4},
		{Code: "national_id_check", TrustLevel: 3, ValidityDuration: &year},
		{Code: "prefecture", TrustLevel: 2, ValidityDuration: &quarter},
		{Code: "self_declared", TrustLevel: 1, ValidityDuration: &quarter},
	}
}

// EnsureSeeded inserts the default definitions when missing. Existing rows
// are left untouched so administrative edits survive restarts.
func (s *PostgresStore) EnsureSeeded(ctx context.Context) error {
	for _, def := range SeedDefinitions() {
		var validitySeconds *int64
		if def.ValidityDuration != nil {
			secs := int64(def.ValidityDuration.Seconds())
			validitySeconds = &secs
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO certifiers (code, trust_level, validity_seconds)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING
		`, def.Code.String(), def.TrustLevel, validitySeconds)
		if err != nil {
			return fmt.Errorf("seed certifier %q: %w", def.Code, err)
		}
	}
	return nil
}
