package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/registry"
)

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "check", "migrate", "enqueue"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestCommands_ArgumentValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		env         map[string]string
		errorString string
	}{
		{
			name:        "check requires a name",
			args:        []string{"check"},
			errorString: "requires at least 1 arg",
		},
		{
			name:        "enqueue requires a name",
			args:        []string{"enqueue"},
			errorString: "requires at least 1 arg",
		},
		{
			name:        "enqueue requires a database",
			args:        []string{"enqueue", "Ivan", "Petrov"},
			env:         map[string]string{"DATABASE_URL": ""},
			errorString: "database URL is required",
		},
		{
			name:        "migrate requires a database",
			args:        []string{"migrate"},
			env:         map[string]string{"DATABASE_URL": ""},
			errorString: "database URL is required",
		},
		{
			name:        "run requires a registry url",
			args:        []string{"run"},
			env:         map[string]string{"REGISTRY_BASE_URL": ""},
			errorString: "RegistryBaseURL",
		},
		{
			name:        "run requires a database",
			args:        []string{"run"},
			env:         map[string]string{"REGISTRY_BASE_URL": "https://registry.test/search?name=", "DATABASE_URL": ""},
			errorString: "DATABASE_URL is required",
		},
		{
			name:        "check rejects a bad base url",
			args:        []string{"check", "--base-url", "not-a-url", "Ivan"},
			errorString: "RegistryBaseURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorString)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")

	got, err := databaseURL("postgres://flag")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", got)

	got, err = databaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", got)

	t.Setenv("DATABASE_URL", "")
	_, err = databaseURL("")
	assert.Error(t, err)
}

func TestWriteCheckResult(t *testing.T) {
	eik := "204567890"
	check := &db.RegistryCheck{
		Email:      "person@example.com",
		FullName:   "Иван Петров",
		MatchCount: 1,
		AnyMatch:   true,
		Companies: []registry.Company{{
			ID:          &eik,
			Reference:   "/ActiveConditionTabResult?uic=204567890",
			RawText:     "23. Едноличен собственик на капитала Алфа ЕООД",
			CompanyName: "Алфа ЕООД",
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeCheckResult(&buf, db.JobStatusChecked, check))

	var decoded struct {
		Status string         `json:"status"`
		Check  map[string]any `json:"check"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, db.JobStatusChecked, decoded.Status)
	assert.Equal(t, "Иван Петров", decoded.Check["full_name"])
	assert.Len(t, decoded.Check["companies"], 1)
}

func TestWriteCheckResult_RejectsInconsistentRow(t *testing.T) {
	check := &db.RegistryCheck{FullName: "Ivan Petrov", MatchCount: 0, AnyMatch: true}

	var buf bytes.Buffer
	err := writeCheckResult(&buf, db.JobStatusNoMatch, check)

	assert.Error(t, err)
	assert.Empty(t, buf.String())
}
