package db

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkomrk2-web/registry-worker/internal/registry"
)

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		status   string
		expected bool
	}{
		{JobStatusPending, false},
		{JobStatusChecked, true},
		{JobStatusNoMatch, true},
		{JobStatusTooManyMatches, true},
		{JobStatusError, true},
		{"running", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTerminalStatus(tt.status))
		})
	}
}

func TestMarshalRegistryCheck_CompaniesNeverNull(t *testing.T) {
	check := &RegistryCheck{Email: "a@b.c", FullName: "Ivan Petrov", MatchCount: 0}

	payload, err := MarshalRegistryCheck(check)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, []any{}, decoded["companies"])
	assert.NotContains(t, decoded, "id")
}

func TestMarshalRegistryCheck_CompanyFieldNames(t *testing.T) {
	id := "123"
	check := &RegistryCheck{
		Email:      "a@b.c",
		FullName:   "Ivan Petrov",
		MatchCount: 1,
		AnyMatch:   true,
		Companies: []registry.Company{
			{ID: &id, Reference: "/ActiveConditionTabResult?uic=123", RawText: "23. owner", CompanyName: "Alpha"},
		},
	}

	payload, err := MarshalRegistryCheck(check)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"email":"a@b.c","full_name":"Ivan Petrov","match_count":1,"any_match":true,
		"companies":[{"eik":"123","href":"/ActiveConditionTabResult?uic=123","rawText":"23. owner","companyName":"Alpha"}]
	}`, string(payload))
}

func TestMarshalRegistryCheck_RejectsInconsistentRow(t *testing.T) {
	check := &RegistryCheck{FullName: "Ivan Petrov", MatchCount: 0, AnyMatch: true}

	_, err := MarshalRegistryCheck(check)
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	content, err := migrationFiles.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "users_pending")
	assert.Contains(t, string(content), "user_registry_checks")
}

func TestMarshalRegistryCheck_CompanyLimit(t *testing.T) {
	check := &RegistryCheck{Email: "a@b.c", FullName: "Ivan Petrov", MatchCount: 100, AnyMatch: true}
	for i := 0; i < 100; i++ {
		id := strconv.Itoa(100000000 + i)
		check.Companies = append(check.Companies, registry.Company{ID: &id, CompanyName: "Company " + id})
	}

	_, err := MarshalRegistryCheck(check)
	require.NoError(t, err, "the largest allowed MAX_COMPANIES_TO_COLLECT must still be storable")

	id := "200000000"
	check.Companies = append(check.Companies, registry.Company{ID: &id})
	_, err = MarshalRegistryCheck(check)
	assert.Error(t, err)
}
