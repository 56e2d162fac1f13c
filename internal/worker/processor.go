// Package worker turns pending name-resolution jobs into registry check results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/names"
	"github.com/kirkomrk2-web/registry-worker/internal/observability"
	"github.com/kirkomrk2-web/registry-worker/internal/registry"
)

// ErrBlankName is returned for jobs whose full name is empty after trimming.
var ErrBlankName = errors.New("full name is blank")

// Store is the persistence the processor and poller need.
type Store interface {
	NextPendingJob(ctx context.Context) (*db.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error
	InsertRegistryCheck(ctx context.Context, check *db.RegistryCheck) error
}

// Default processing settings.
const (
	DefaultTooManyMatchesThreshold = 100
	DefaultMaxAttempts             = 2
	DefaultRetryDelay              = 2 * time.Second
)

// Options configures a Processor.
type Options struct {
	// BaseURL is the registry search prefix the encoded name is appended to.
	BaseURL                 string
	TooManyMatchesThreshold int
	MaxAttempts             int
	RetryDelay              time.Duration
	Scraper                 registry.Options
}

// AttemptsError reports that every scrape attempt for a name failed.
type AttemptsError struct {
	FullName string
	Attempts int
	Cause    error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("registry lookup for %q failed after %d attempt(s): %v", e.FullName, e.Attempts, e.Cause)
}

func (e *AttemptsError) Unwrap() error {
	return e.Cause
}

// Processor runs one job at a time against a shared registry page.
type Processor struct {
	store   Store
	scraper *registry.Scraper
	opts    Options
	sleep   registry.SleepFunc
}

// NewProcessor creates a Processor. store may be nil when only Resolve is used.
func NewProcessor(store Store, page registry.Page, opts Options) *Processor {
	if opts.TooManyMatchesThreshold <= 0 {
		opts.TooManyMatchesThreshold = DefaultTooManyMatchesThreshold
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	sleep := opts.Scraper.Sleep
	if sleep == nil {
		sleep = registry.Sleep
	}
	return &Processor{
		store:   store,
		scraper: registry.New(page, opts.Scraper),
		opts:    opts,
		sleep:   sleep,
	}
}

// Classify maps a final match count to the job status it produces.
func Classify(matchCount, threshold int) string {
	switch {
	case matchCount <= 0:
		return db.JobStatusNoMatch
	case matchCount > threshold:
		return db.JobStatusTooManyMatches
	default:
		return db.JobStatusChecked
	}
}

// Resolve looks fullName up in the registry and returns the resulting status
// and result row. It does not touch the store.
func (p *Processor) Resolve(ctx context.Context, fullName, email string) (string, *db.RegistryCheck, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return db.JobStatusError, nil, ErrBlankName
	}

	target := names.NewKey(fullName)
	searchURL := registry.SearchURL(p.opts.BaseURL, fullName)
	log.Printf("[worker] Resolving %s (key %q) via %s", fullName, target, searchURL)

	var (
		matchCount int
		companies  []registry.Company
		lastErr    error
		attempts   int
	)
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		attempts = attempt
		matchCount, companies, lastErr = p.attempt(ctx, searchURL, fullName, target)
		if lastErr == nil {
			break
		}

		observability.ScrapeAttemptFailures.Inc()
		log.Printf("[worker] Attempt %d/%d for %s failed: %v", attempt, p.opts.MaxAttempts, fullName, lastErr)
		if !registry.IsRetryable(lastErr) {
			break
		}
		if attempt < p.opts.MaxAttempts {
			log.Printf("[worker] Retrying %s after %s", fullName, p.opts.RetryDelay)
			if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}
	if lastErr != nil {
		return db.JobStatusError, nil, &AttemptsError{FullName: fullName, Attempts: attempts, Cause: lastErr}
	}

	status := Classify(matchCount, p.opts.TooManyMatchesThreshold)
	if status != db.JobStatusChecked {
		if status == db.JobStatusTooManyMatches {
			log.Printf("[worker] Too many matches (%d > %d) for %s, skipping company scrape",
				matchCount, p.opts.TooManyMatchesThreshold, fullName)
		}
		companies = []registry.Company{}
	}

	return status, &db.RegistryCheck{
		Email:      email,
		FullName:   fullName,
		MatchCount: matchCount,
		AnyMatch:   matchCount > 0,
		Companies:  companies,
	}, nil
}

// attempt performs one navigate, count and collect cycle.
func (p *Processor) attempt(ctx context.Context, searchURL, fullName string, target names.Key) (int, []registry.Company, error) {
	if err := p.scraper.Navigate(ctx, searchURL); err != nil {
		return 0, nil, err
	}

	matchCount, err := p.scraper.MatchCount(ctx)
	if err != nil {
		return 0, nil, err
	}
	log.Printf("[worker] Final match count for %s: %d", fullName, matchCount)

	if matchCount <= 0 || matchCount > p.opts.TooManyMatchesThreshold {
		return matchCount, []registry.Company{}, nil
	}

	companies, err := p.scraper.CollectCompanies(ctx, searchURL, fullName, target, matchCount)
	if err != nil {
		return 0, nil, err
	}
	return matchCount, companies, nil
}

// Process resolves job, appends its result row and moves the job to a terminal
// status. A failed insert is logged and does not prevent the status update.
// When ctx is cancelled mid-lookup the job is left pending.
func (p *Processor) Process(ctx context.Context, job *db.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("job is nil")
	}
	start := time.Now()
	observability.InFlight.Set(1)
	defer observability.InFlight.Set(0)

	status, check, err := p.Resolve(ctx, job.FullName, job.Email)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("job %s interrupted: %w", job.ID, err)
		}
		log.Printf("[worker] Job %s failed: %v", job.ID, err)
	}

	if check != nil {
		if insertErr := p.store.InsertRegistryCheck(ctx, check); insertErr != nil {
			observability.ResultInsertFailures.Inc()
			log.Printf("[worker] Error inserting registry check for %s: %v", check.FullName, insertErr)
		} else {
			observability.CompaniesCollected.Add(float64(len(check.Companies)))
			log.Printf("[worker] Inserted registry check for %s (matches=%d, companies=%d)",
				check.FullName, check.MatchCount, len(check.Companies))
		}
	}

	if updateErr := p.store.UpdateJobStatus(ctx, job.ID, status); updateErr != nil {
		return status, fmt.Errorf("failed to update status of job %s: %w", job.ID, updateErr)
	}

	observability.JobsProcessed.WithLabelValues(status).Inc()
	observability.JobDuration.Observe(time.Since(start).Seconds())
	log.Printf("[worker] Done processing %s: status=%s in %s", job.ID, status, time.Since(start).Round(time.Millisecond))
	return status, nil
}
