package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kirkomrk2-web/registry-worker/internal/registry"
	"github.com/kirkomrk2-web/registry-worker/internal/schemas"
)

// MarshalRegistryCheck encodes a check and validates it against the
// registry_check JSON schema.
func MarshalRegistryCheck(check *RegistryCheck) ([]byte, error) {
	if check.Companies == nil {
		check.Companies = []registry.Company{}
	}
	payload, err := json.Marshal(check)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry check: %w", err)
	}
	if err := schemas.ValidateRegistryCheck(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// InsertRegistryCheck appends a result row. Rows are never updated afterwards.
func (db *DB) InsertRegistryCheck(ctx context.Context, check *RegistryCheck) error {
	if _, err := MarshalRegistryCheck(check); err != nil {
		return err
	}
	companies, err := json.Marshal(check.Companies)
	if err != nil {
		return fmt.Errorf("failed to marshal companies: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO user_registry_checks (email, full_name, match_count, any_match, companies)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		check.Email, check.FullName, check.MatchCount, check.AnyMatch, companies,
	).Scan(&check.ID, &check.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert registry check: %w", err)
	}
	return nil
}

// LatestRegistryCheck returns the most recent check for email, or nil when none exists.
func (db *DB) LatestRegistryCheck(ctx context.Context, email string) (*RegistryCheck, error) {
	var check RegistryCheck
	var companies []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, full_name, match_count, any_match, companies, created_at
		 FROM user_registry_checks
		 WHERE email = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email,
	).Scan(&check.ID, &check.Email, &check.FullName, &check.MatchCount, &check.AnyMatch, &companies, &check.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registry check: %w", err)
	}
	if len(companies) > 0 {
		if err := json.Unmarshal(companies, &check.Companies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal companies: %w", err)
		}
	}
	return &check, nil
}
