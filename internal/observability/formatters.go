// Package observability provides metrics and formatted console output for the worker.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintRegistryCheck outputs a human-readable summary of one processed lookup.
func (p *Printer) PrintRegistryCheck(status string, check *db.RegistryCheck) {
	if check == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name:     %s\n", check.FullName))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", status))
	sb.WriteString(fmt.Sprintf("Matches:  %d\n", check.MatchCount))

	if len(check.Companies) > 0 {
		sb.WriteString(fmt.Sprintf("\nCompanies (%d):\n", len(check.Companies)))
		count := min(len(check.Companies), maxItemsToShow)
		for i := 0; i < count; i++ {
			c := check.Companies[i]
			sb.WriteString(fmt.Sprintf("  • %s", c.CompanyName))
			if c.ID != nil {
				sb.WriteString(fmt.Sprintf(" (%s)", *c.ID))
			}
			sb.WriteString("\n")
		}
		if len(check.Companies) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(check.Companies)-maxItemsToShow))
		}
	}

	p.printBox("REGISTRY CHECK", strings.TrimSuffix(sb.String(), "\n"))
}
