package registry

import (
	"context"
	"errors"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CountScript collects the result-counter texts and the page body text.
const CountScript = `(() => ({
  resultTexts: Array.from(document.querySelectorAll("div.result-count"))
    .map((el) => (el.textContent || "").trim())
    .filter(Boolean),
  bodyText: (document.body && document.body.innerText) || ""
}))()`

// countPatterns are the two phrasings of the "total results" marker.
// Order matters: the first one that matches wins.
var countPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Общо:\s*(\d+)`),
	regexp.MustCompile(`Total:\s*(\d+)`),
}

// CountSnapshot is the raw DOM data read for the match count.
type CountSnapshot struct {
	ResultTexts []string `json:"resultTexts"`
	BodyText    string   `json:"bodyText"`
}

// ParseCount extracts the total from text, returning 0 when no marker is present.
// Totals too large to parse saturate to math.MaxInt32, the match_count column limit.
func ParseCount(text string) int {
	for _, re := range countPatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt32
		}
		if err != nil {
			continue
		}
		return n
	}
	return 0
}

// MatchCountFromSnapshot prefers the result widget and falls back to the body text.
func MatchCountFromSnapshot(snap CountSnapshot) int {
	if len(snap.ResultTexts) > 0 {
		if n := ParseCount(strings.Join(snap.ResultTexts, " ")); n > 0 {
			return n
		}
	}
	if snap.BodyText != "" {
		if n := ParseCount(snap.BodyText); n > 0 {
			log.Printf("[registry] Match count from body fallback: %d", n)
			return n
		}
	}
	return 0
}

// IsSettling reports whether count falls in the band where the registry may
// still be recomputing its total.
func (s *Scraper) IsSettling(count int) bool {
	return count >= s.opts.HighResultsMin && count < s.opts.HighResultsMax
}

// readMatchCount waits for the counter to render and reads it once.
// Evaluation failures are logged and read as zero; only cancellation is returned.
func (s *Scraper) readMatchCount(ctx context.Context) (int, error) {
	if err := s.opts.Sleep(ctx, s.opts.CountSettleDelay); err != nil {
		return 0, err
	}

	var snap CountSnapshot
	if err := s.page.Evaluate(ctx, CountScript, &snap); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Printf("[registry] Could not read match count from page, treating as 0: %v", err)
		return 0, nil
	}

	count := MatchCountFromSnapshot(snap)
	if count == 0 {
		log.Printf("[registry] No match count detected, returning 0")
	}
	return count, nil
}

// MatchCount reads the total number of results on the loaded search page.
// A count inside the settling band is re-read once after HighResultsExtraWait
// and the second reading is returned.
func (s *Scraper) MatchCount(ctx context.Context) (int, error) {
	count, err := s.readMatchCount(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[registry] Initial match count: %d", count)

	if !s.IsSettling(count) {
		return count, nil
	}

	log.Printf("[registry] Match count between %d and %d, waiting %s for final count",
		s.opts.HighResultsMin, s.opts.HighResultsMax, s.opts.HighResultsExtraWait)
	if err := s.opts.Sleep(ctx, s.opts.HighResultsExtraWait); err != nil {
		return 0, err
	}

	count, err = s.readMatchCount(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[registry] Match count after extra wait: %d", count)
	return count, nil
}
