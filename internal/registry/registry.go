// Package registry drives a business-registry search page: it reads the reported
// match count, expands result rows and collects the companies a person owns.
//
// Browser access goes through the narrow Page capability. Scripts evaluated in
// the page only return raw DOM data; every regex and HTML parsing step runs in Go.
package registry

import (
	"context"
	"time"
)

// Page is the browser capability the scraper needs.
type Page interface {
	// Navigate loads url and waits until the network is idle.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs script in the page and decodes its JSON result into res.
	Evaluate(ctx context.Context, script string, res any) error
}

// Company is one "sole owner of capital" relationship found in the registry.
// The JSON names match the rows stored in user_registry_checks.companies.
type Company struct {
	ID          *string `json:"eik"`
	Reference   string  `json:"href"`
	RawText     string  `json:"rawText"`
	CompanyName string  `json:"companyName"`
}

// dedupKey identifies a company across pages by registry ID and link.
func (c Company) dedupKey() string {
	id := ""
	if c.ID != nil {
		id = *c.ID
	}
	return id + "|" + c.Reference
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with ctx.Err() when ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tunes the scraper. Zero values are replaced by defaults in withDefaults.
type Options struct {
	// CountSettleDelay is waited before every read of the result counter.
	CountSettleDelay time.Duration
	// HighResultsMin and HighResultsMax bound the [min, max) band in which a
	// count is considered still settling and is read a second time.
	// Leaving both at zero selects the default band.
	HighResultsMin       int
	HighResultsMax       int
	HighResultsExtraWait time.Duration

	ExpandSettleDelay     time.Duration
	MaxCompaniesToCollect int
	MaxPagesToScan        int
	GuessedPageSize       int

	// Sleep replaces the real timer, mostly in tests.
	Sleep SleepFunc
}

// Default scraper settings, tuned for the registry's layout.
const (
	DefaultCountSettleDelay      = 2 * time.Second
	DefaultHighResultsMin        = 200
	DefaultHighResultsMax        = 1000
	DefaultHighResultsExtraWait  = 15 * time.Second
	DefaultExpandSettleDelay     = 1500 * time.Millisecond
	DefaultMaxCompaniesToCollect = 10
	DefaultMaxPagesToScan        = 5
	DefaultGuessedPageSize       = 25
)

// DefaultOptions returns the production scraper settings.
func DefaultOptions() Options {
	return Options{
		CountSettleDelay:      DefaultCountSettleDelay,
		HighResultsMin:        DefaultHighResultsMin,
		HighResultsMax:        DefaultHighResultsMax,
		HighResultsExtraWait:  DefaultHighResultsExtraWait,
		ExpandSettleDelay:     DefaultExpandSettleDelay,
		MaxCompaniesToCollect: DefaultMaxCompaniesToCollect,
		MaxPagesToScan:        DefaultMaxPagesToScan,
		GuessedPageSize:       DefaultGuessedPageSize,
		Sleep:                 Sleep,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HighResultsMin == 0 && o.HighResultsMax == 0 {
		o.HighResultsMin = d.HighResultsMin
		o.HighResultsMax = d.HighResultsMax
	}
	if o.MaxCompaniesToCollect <= 0 {
		o.MaxCompaniesToCollect = d.MaxCompaniesToCollect
	}
	if o.MaxPagesToScan <= 0 {
		o.MaxPagesToScan = d.MaxPagesToScan
	}
	if o.GuessedPageSize <= 0 {
		o.GuessedPageSize = d.GuessedPageSize
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	return o
}

// Scraper bundles the match-count estimator, company extractor and
// pagination collector over one Page.
type Scraper struct {
	page    Page
	opts    Options
	current string
}

// New creates a Scraper for page. Delays left at zero are not waited.
func New(page Page, opts Options) *Scraper {
	return &Scraper{page: page, opts: opts.withDefaults()}
}

// Navigate loads url on the underlying page, wrapping failures in a ScrapeError.
func (s *Scraper) Navigate(ctx context.Context, url string) error {
	if err := s.page.Navigate(ctx, url); err != nil {
		return &ScrapeError{URL: url, Message: "navigation failed", Cause: err}
	}
	s.current = url
	return nil
}
