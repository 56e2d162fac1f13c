package registry

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/kirkomrk2-web/registry-worker/internal/names"
)

var pageParamPattern = regexp.MustCompile(`(?i)([?&]page=)\d+`)

// SearchURL appends the URI-encoded full name to the registry search prefix.
func SearchURL(baseURL, fullName string) string {
	return baseURL + encodeURIComponent(fullName)
}

// encodeURIComponent escapes s the way browsers do for a URI component:
// spaces become %20 and the unreserved marks -_.!~*'() are kept.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, mark := range []string{"!", "'", "(", ")", "*"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(mark), mark)
	}
	return escaped
}

// PageURL rewrites the page query parameter of base to n, appending it when absent.
func PageURL(base string, n int) string {
	if pageParamPattern.MatchString(base) {
		return pageParamPattern.ReplaceAllString(base, fmt.Sprintf("${1}%d", n))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, n)
}

// PageBound is the number of result pages worth visiting for matchCount results.
func (s *Scraper) PageBound(matchCount int) int {
	byCount := 0
	if matchCount > 0 {
		byCount = (matchCount + s.opts.GuessedPageSize - 1) / s.opts.GuessedPageSize
	}
	if byCount == 0 {
		byCount = 1
	}
	return min(s.opts.MaxPagesToScan, byCount)
}

// CollectCompanies walks the result pages of an already loaded search and
// gathers at most MaxCompaniesToCollect distinct companies. Page 1 is the page
// currently loaded; later pages are navigated to by rewriting the page parameter.
func (s *Scraper) CollectCompanies(ctx context.Context, searchURL, fullName string, target names.Key, matchCount int) ([]Company, error) {
	limit := s.opts.MaxCompaniesToCollect
	maxPages := s.PageBound(matchCount)

	collected := make([]Company, 0, limit)
	seen := make(map[string]bool)

	for pageIndex := 1; pageIndex <= maxPages && len(collected) < limit; pageIndex++ {
		if pageIndex > 1 {
			pageURL := PageURL(searchURL, pageIndex)
			log.Printf("[registry] Loading page %d/%d for %s -> %s", pageIndex, maxPages, fullName, pageURL)
			if err := s.Navigate(ctx, pageURL); err != nil {
				return nil, err
			}
		}

		onPage, err := s.ExtractCompanies(ctx, fullName, target)
		if err != nil {
			return nil, err
		}

		for _, c := range onPage {
			k := c.dedupKey()
			if seen[k] {
				continue
			}
			seen[k] = true
			collected = append(collected, c)
			if len(collected) >= limit {
				break
			}
		}
		log.Printf("[registry] Collected so far %d companies for %s", len(collected), fullName)
	}

	log.Printf("[registry] Total collected companies for %s: %d", fullName, len(collected))
	return collected, nil
}
