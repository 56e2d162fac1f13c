package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

const testBaseURL = "https://registry.test/search?name="

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"REGISTRY_BASE_URL": testBaseURL,
	}))
	require.NoError(t, err)

	assert.Equal(t, testBaseURL, cfg.RegistryBaseURL)
	assert.Equal(t, 100, cfg.TooManyMatchesThreshold)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 200, cfg.HighResultsMin)
	assert.Equal(t, 1000, cfg.HighResultsMax)
	assert.Equal(t, 15*time.Second, cfg.HighResultsExtraWait)
	assert.Equal(t, 10, cfg.MaxCompaniesToCollect)
	assert.Equal(t, 5, cfg.MaxPagesToScan)
	assert.Equal(t, 25, cfg.GuessedPageSize)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.CountSettleDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.ExpandSettleDelay)
	assert.Equal(t, 1.0, cfg.NavigationsPerSecond)
	assert.True(t, cfg.BrowserHeadless)
	assert.Equal(t, ":9090", cfg.OpsAddr)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.NotEmpty(t, cfg.LeaseFile)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"REGISTRY_BASE_URL":          testBaseURL,
		"DATABASE_URL":               "postgres://localhost/registry",
		"TOO_MANY_MATCHES_THRESHOLD": "50",
		"POLL_INTERVAL":              "30s",
		"EXPAND_SETTLE_DELAY":        "750",
		"BROWSER_HEADLESS":           "false",
		"NAVIGATIONS_PER_SECOND":     "0.5",
		"REDIS_URL":                  "redis://localhost:6379/0",
		"OPS_ADDR":                   " :8081 ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/registry", cfg.DatabaseURL)
	assert.Equal(t, 50, cfg.TooManyMatchesThreshold)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.ExpandSettleDelay)
	assert.False(t, cfg.BrowserHeadless)
	assert.Equal(t, 0.5, cfg.NavigationsPerSecond)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, ":8081", cfg.OpsAddr)
}

func TestLoadFrom_ParseErrors(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{
		"REGISTRY_BASE_URL": testBaseURL,
		"MAX_ATTEMPTS":      "two",
		"POLL_INTERVAL":     "soon",
		"BROWSER_HEADLESS":  "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Contains(t, err.Error(), "BROWSER_HEADLESS")
}

func TestLoadFrom_Validation(t *testing.T) {
	tests := []struct {
		name     string
		vars     map[string]string
		contains string
	}{
		{
			name:     "missing base url",
			vars:     map[string]string{},
			contains: "RegistryBaseURL",
		},
		{
			name:     "base url not a url",
			vars:     map[string]string{"REGISTRY_BASE_URL": "registry"},
			contains: "RegistryBaseURL",
		},
		{
			name:     "zero attempts",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "MAX_ATTEMPTS": "0"},
			contains: "MaxAttempts",
		},
		{
			name:     "inverted band",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "HIGH_RESULTS_MIN": "500", "HIGH_RESULTS_MAX": "100"},
			contains: "HighResultsMax",
		},
		{
			name:     "zero band minimum",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "HIGH_RESULTS_MIN": "0"},
			contains: "HighResultsMin",
		},
		{
			name:     "zero band",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "HIGH_RESULTS_MIN": "0", "HIGH_RESULTS_MAX": "0"},
			contains: "HighResultsMin",
		},
		{
			name:     "company limit above stored maximum",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "MAX_COMPANIES_TO_COLLECT": "101"},
			contains: "MaxCompaniesToCollect",
		},
		{
			name:     "poll interval too short",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "POLL_INTERVAL": "10ms"},
			contains: "PollInterval",
		},
		{
			name:     "bad redis url",
			vars:     map[string]string{"REGISTRY_BASE_URL": testBaseURL, "REDIS_URL": "not a url"},
			contains: "RedisURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(lookupFrom(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error")
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadFrom_CompanyLimitAtStoredMaximum(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"REGISTRY_BASE_URL":        testBaseURL,
		"MAX_COMPANIES_TO_COLLECT": "100",
	}))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxCompaniesToCollect)
}

func TestRequireDatabase(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireDatabase())

	cfg.DatabaseURL = "postgres://localhost/registry"
	assert.NoError(t, cfg.RequireDatabase())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.RegistryBaseURL = testBaseURL
	cfg.MaxCompaniesToCollect = 3
	cfg.CountSettleDelay = 0
	cfg.NavigationsPerSecond = 2
	cfg.BrowserHeadless = false

	opts := cfg.WorkerOptions()
	assert.Equal(t, testBaseURL, opts.BaseURL)
	assert.Equal(t, 100, opts.TooManyMatchesThreshold)
	assert.Equal(t, 3, opts.Scraper.MaxCompaniesToCollect)
	assert.Zero(t, opts.Scraper.CountSettleDelay)
	assert.NotNil(t, opts.Scraper.Sleep)

	bc := cfg.BrowserConfig()
	assert.Equal(t, 2.0, bc.NavigationsPerSecond)
	assert.False(t, bc.Headless)
}
