package registry

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kirkomrk2-web/registry-worker/internal/names"
)

// ExpandScript clicks every row expander in the results table and returns how
// many it clicked. Rows that are already open stay open.
const ExpandScript = `(() => {
  const block = document.querySelector("div.table-responsive-block");
  if (!block) return 0;
  const buttons = Array.from(block.querySelectorAll("td.toggle-collapse button.system-button"));
  for (const btn of buttons) {
    if (btn instanceof HTMLElement) btn.click();
  }
  return buttons.length;
})()`

// TableScript returns the results table markup, or "" when it is absent.
const TableScript = `(() => {
  const block = document.querySelector("div.table-responsive-block");
  return block ? block.outerHTML : "";
})()`

const (
	tableSelector     = "div.table-responsive-block"
	detailRowClass    = "collapsible-row"
	innerRowsSelector = "table.inner-table tbody tr"
	companyLinkSel    = `a[href*="ActiveConditionTabResult"]`
)

// ownerLabels are the label phrasings that mark a "sole owner of capital" relation.
var ownerLabels = []string{
	"sole owner of the capital",
	"собственик на капитала",
}

const ownerLabelPrefix = "23."

var uicPattern = regexp.MustCompile(`uic=(\d+)`)

// DebugBlock records one scanned header row, logged when a page yields nothing.
type DebugBlock struct {
	HeaderText string    `json:"headerText"`
	RowNameKey names.Key `json:"rowNameKey"`
}

// IsOwnerLabel reports whether a relation label denotes sole ownership of capital.
func IsOwnerLabel(label string) bool {
	label = names.Normalize(label)
	if strings.HasPrefix(label, ownerLabelPrefix) {
		return true
	}
	for _, l := range ownerLabels {
		if strings.Contains(label, l) {
			return true
		}
	}
	return false
}

// ParseCompanies reads the results table markup and returns the ownership
// records of every person whose header name key matches target.
// Missing tables yield an empty result rather than an error.
func ParseCompanies(html string, target names.Key) ([]Company, []DebugBlock) {
	var companies []Company
	var debug []DebugBlock

	if strings.TrimSpace(html) == "" {
		return companies, debug
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return companies, debug
	}

	tbody := doc.Find(tableSelector).First().Find("tbody").First()
	if tbody.Length() == 0 {
		return companies, debug
	}

	rows := tbody.ChildrenFiltered("tr")
	for i := 0; i < rows.Length()-1; i++ {
		header := rows.Eq(i)
		detail := rows.Eq(i + 1)
		if !detail.HasClass(detailRowClass) {
			continue
		}

		nameText := header.Text()
		if cell := header.ChildrenFiltered("td").Last(); cell.Length() > 0 {
			nameText = cell.Text()
		}
		rowKey := names.NewKey(nameText)
		debug = append(debug, DebugBlock{HeaderText: names.Normalize(nameText), RowNameKey: rowKey})

		if !names.Match(rowKey, target) {
			continue
		}

		detail.Find(innerRowsSelector).Each(func(_ int, row *goquery.Selection) {
			if c, ok := parseOwnerRow(row); ok {
				companies = append(companies, c)
			}
		})
	}

	return dedupCompanies(companies), debug
}

// parseOwnerRow turns one inner-table row into a Company when it describes sole ownership.
func parseOwnerRow(row *goquery.Selection) (Company, bool) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < 2 {
		return Company{}, false
	}
	if !IsOwnerLabel(cells.Eq(0).Text()) {
		return Company{}, false
	}

	link := cells.Eq(1).Find(companyLinkSel).First()
	if link.Length() == 0 {
		return Company{}, false
	}
	href, _ := link.Attr("href")

	var id *string
	if m := uicPattern.FindStringSubmatch(href); len(m) == 2 {
		v := m[1]
		id = &v
	}

	texts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		texts = append(texts, cell.Text())
	})

	return Company{
		ID:          id,
		Reference:   href,
		RawText:     strings.Join(strings.Fields(strings.Join(texts, " ")), " "),
		CompanyName: strings.TrimSpace(link.Text()),
	}, true
}

func dedupCompanies(in []Company) []Company {
	seen := make(map[string]bool, len(in))
	out := make([]Company, 0, len(in))
	for _, c := range in {
		k := c.dedupKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// ExtractCompanies expands every row on the loaded page and returns the
// companies owned by the person identified by target. fullName is only used in logs.
func (s *Scraper) ExtractCompanies(ctx context.Context, fullName string, target names.Key) ([]Company, error) {
	var clicked int
	if err := s.page.Evaluate(ctx, ExpandScript, &clicked); err != nil {
		return nil, &ScrapeError{URL: s.current, Message: "failed to expand result rows", Cause: err}
	}

	if err := s.opts.Sleep(ctx, s.opts.ExpandSettleDelay); err != nil {
		return nil, err
	}

	var html string
	if err := s.page.Evaluate(ctx, TableScript, &html); err != nil {
		return nil, &ScrapeError{URL: s.current, Message: "failed to read results table", Cause: err}
	}

	companies, debug := ParseCompanies(html, target)
	log.Printf("[registry] Extracted %d companies from current page for %s (expanded %d rows)",
		len(companies), fullName, clicked)
	if len(companies) == 0 {
		log.Printf("[registry] Debug header blocks for this page: %+v", debug)
	}
	return companies, nil
}
