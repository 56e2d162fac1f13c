// Package config provides configuration loading and validation for the worker CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirkomrk2-web/registry-worker/internal/browser"
	"github.com/kirkomrk2-web/registry-worker/internal/lease"
	"github.com/kirkomrk2-web/registry-worker/internal/registry"
	"github.com/kirkomrk2-web/registry-worker/internal/worker"
)

// Config is read from the environment; a .env file is loaded into the
// environment by the CLI before Load runs.
type Config struct {
	// Connections
	DatabaseURL     string
	RegistryBaseURL string `validate:"required,url"`
	RedisURL        string `validate:"omitempty,url"`

	// Classification and retries
	TooManyMatchesThreshold int           `validate:"gte=1"`
	MaxAttempts             int           `validate:"gte=1,lte=10"`
	RetryDelay              time.Duration `validate:"gte=0"`
	PollInterval            time.Duration `validate:"gte=1s"`

	// Scraping
	HighResultsMin        int           `validate:"gte=1"`
	HighResultsMax        int           `validate:"gtefield=HighResultsMin"`
	HighResultsExtraWait  time.Duration `validate:"gte=0"`
	CountSettleDelay      time.Duration `validate:"gte=0"`
	ExpandSettleDelay     time.Duration `validate:"gte=0"`
	MaxCompaniesToCollect int           `validate:"gte=1,lte=100"`
	MaxPagesToScan        int           `validate:"gte=1"`
	GuessedPageSize       int           `validate:"gte=1"`

	// Browser
	NavigationsPerSecond float64 `validate:"gt=0"`
	BrowserHeadless      bool

	// Process
	OpsAddr   string
	LeaseFile string
	LeaseTTL  time.Duration `validate:"gte=3s"`
	Verbose   bool
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		TooManyMatchesThreshold: worker.DefaultTooManyMatchesThreshold,
		MaxAttempts:             worker.DefaultMaxAttempts,
		RetryDelay:              worker.DefaultRetryDelay,
		PollInterval:            worker.DefaultPollInterval,
		HighResultsMin:          registry.DefaultHighResultsMin,
		HighResultsMax:          registry.DefaultHighResultsMax,
		HighResultsExtraWait:    registry.DefaultHighResultsExtraWait,
		CountSettleDelay:        registry.DefaultCountSettleDelay,
		ExpandSettleDelay:       registry.DefaultExpandSettleDelay,
		MaxCompaniesToCollect:   registry.DefaultMaxCompaniesToCollect,
		MaxPagesToScan:          registry.DefaultMaxPagesToScan,
		GuessedPageSize:         registry.DefaultGuessedPageSize,
		NavigationsPerSecond:    browser.DefaultNavigationsPerSecond,
		BrowserHeadless:         true,
		OpsAddr:                 ":9090",
		LeaseFile:               lease.DefaultFile(),
		LeaseTTL:                lease.DefaultTTL,
	}
}

// Load builds a Config from environment variables over Default and validates it.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable lookup.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	env := &envReader{lookup: lookup}

	env.str("DATABASE_URL", &cfg.DatabaseURL)
	env.str("REGISTRY_BASE_URL", &cfg.RegistryBaseURL)
	env.str("REDIS_URL", &cfg.RedisURL)
	env.integer("TOO_MANY_MATCHES_THRESHOLD", &cfg.TooManyMatchesThreshold)
	env.integer("MAX_ATTEMPTS", &cfg.MaxAttempts)
	env.duration("RETRY_DELAY", &cfg.RetryDelay)
	env.duration("POLL_INTERVAL", &cfg.PollInterval)
	env.integer("HIGH_RESULTS_MIN", &cfg.HighResultsMin)
	env.integer("HIGH_RESULTS_MAX", &cfg.HighResultsMax)
	env.duration("HIGH_RESULTS_EXTRA_WAIT", &cfg.HighResultsExtraWait)
	env.duration("COUNT_SETTLE_DELAY", &cfg.CountSettleDelay)
	env.duration("EXPAND_SETTLE_DELAY", &cfg.ExpandSettleDelay)
	env.integer("MAX_COMPANIES_TO_COLLECT", &cfg.MaxCompaniesToCollect)
	env.integer("MAX_PAGES_TO_SCAN", &cfg.MaxPagesToScan)
	env.integer("GUESSED_PAGE_SIZE", &cfg.GuessedPageSize)
	env.float("NAVIGATIONS_PER_SECOND", &cfg.NavigationsPerSecond)
	env.boolean("BROWSER_HEADLESS", &cfg.BrowserHeadless)
	env.str("OPS_ADDR", &cfg.OpsAddr)
	env.str("LEASE_FILE", &cfg.LeaseFile)
	env.duration("LEASE_TTL", &cfg.LeaseTTL)
	env.boolean("VERBOSE", &cfg.Verbose)

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("config error: %w", errors.Join(env.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges. DATABASE_URL is checked by RequireDatabase
// since the check command runs without one.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config error: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("'%s' failed '%s' (value %v)", fe.Field(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
}

// RequireDatabase returns an error when DATABASE_URL is not set.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	return nil
}

// ScraperOptions converts the scraping settings to registry options.
func (c *Config) ScraperOptions() registry.Options {
	opts := registry.DefaultOptions()
	opts.CountSettleDelay = c.CountSettleDelay
	opts.HighResultsMin = c.HighResultsMin
	opts.HighResultsMax = c.HighResultsMax
	opts.HighResultsExtraWait = c.HighResultsExtraWait
	opts.ExpandSettleDelay = c.ExpandSettleDelay
	opts.MaxCompaniesToCollect = c.MaxCompaniesToCollect
	opts.MaxPagesToScan = c.MaxPagesToScan
	opts.GuessedPageSize = c.GuessedPageSize
	return opts
}

// WorkerOptions converts the processing settings to worker options.
func (c *Config) WorkerOptions() worker.Options {
	return worker.Options{
		BaseURL:                 c.RegistryBaseURL,
		TooManyMatchesThreshold: c.TooManyMatchesThreshold,
		MaxAttempts:             c.MaxAttempts,
		RetryDelay:              c.RetryDelay,
		Scraper:                 c.ScraperOptions(),
	}
}

// BrowserConfig returns the browser session settings.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		Headless:             c.BrowserHeadless,
		NavigationsPerSecond: c.NavigationsPerSecond,
		Verbose:              c.Verbose,
	}
}

// envReader parses variables into typed fields, collecting every parse error.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %q is not a number", key, v))
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

// duration accepts Go duration strings and bare integers as milliseconds.
func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %q is not a duration", key, v))
		return
	}
	*dst = d
}
