package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/kirkomrk2-web/registry-worker/internal/registry"
)

// Job status constants
const (
	JobStatusPending        = "pending"
	JobStatusChecked        = "checked"
	JobStatusNoMatch        = "no_match"
	JobStatusTooManyMatches = "too_many_matches"
	JobStatusError          = "error"
)

// IsTerminalStatus reports whether status is one a processed job ends in.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusChecked, JobStatusNoMatch, JobStatusTooManyMatches, JobStatusError:
		return true
	default:
		return false
	}
}

// Job represents a row of users_pending: one person-name resolution request
type Job struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistryCheck represents a row of user_registry_checks
type RegistryCheck struct {
	ID         int64              `json:"id,omitempty"`
	Email      string             `json:"email"`
	FullName   string             `json:"full_name"`
	MatchCount int                `json:"match_count"`
	AnyMatch   bool               `json:"any_match"`
	Companies  []registry.Company `json:"companies"`
	CreatedAt  *time.Time         `json:"created_at,omitempty"`
}
