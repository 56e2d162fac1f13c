// Package registrytest provides an in-memory registry.Page for tests.
package registrytest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kirkomrk2-web/registry-worker/internal/registry"
)

// Fixture is the DOM state served for one URL.
type Fixture struct {
	// Counts holds the result-counter texts for successive count reads.
	// The last entry is repeated once the list is exhausted.
	Counts    [][]string
	BodyText  string
	TableHTML string
}

// Page serves fixtures keyed by URL. Unknown URLs load an empty page.
type Page struct {
	mu sync.Mutex

	Fixtures map[string]*Fixture
	// NavigateErrs is consumed one entry per Navigate call.
	NavigateErrs []error
	// EvaluateErr, when set, fails every Evaluate call.
	EvaluateErr error

	Navigations []string
	CountReads  map[string]int
	current     string
}

// NewPage creates a Page with the given fixtures.
func NewPage(fixtures map[string]*Fixture) *Page {
	return &Page{Fixtures: fixtures, CountReads: make(map[string]int)}
}

// Navigate records url and makes its fixture current.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, url)
	if len(p.NavigateErrs) > 0 {
		err := p.NavigateErrs[0]
		p.NavigateErrs = p.NavigateErrs[1:]
		if err != nil {
			return err
		}
	}
	p.current = url
	return nil
}

// Evaluate answers the scripts the registry package evaluates.
func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.EvaluateErr != nil {
		return p.EvaluateErr
	}

	fx := p.Fixtures[p.current]
	if fx == nil {
		fx = &Fixture{}
	}

	var value any
	switch script {
	case registry.CountScript:
		read := p.CountReads[p.current]
		p.CountReads[p.current] = read + 1
		var texts []string
		if len(fx.Counts) > 0 {
			texts = fx.Counts[min(read, len(fx.Counts)-1)]
		}
		value = registry.CountSnapshot{ResultTexts: texts, BodyText: fx.BodyText}
	case registry.ExpandScript:
		value = strings.Count(fx.TableHTML, "system-button")
	case registry.TableScript:
		value = fx.TableHTML
	default:
		return fmt.Errorf("registrytest: unexpected script %q", script)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

// NavigationCount returns how many Navigate calls were made.
func (p *Page) NavigationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Navigations)
}

// Person is one header/detail row pair in a results table.
type Person struct {
	Name      string
	Relations []Relation
}

// Relation is one inner-table row of a person's detail block.
type Relation struct {
	Label string
	UIC   string
	Name  string
}

// ResultsTable renders registry-style results markup for people.
func ResultsTable(people ...Person) string {
	var sb strings.Builder
	sb.WriteString(`<div class="table-responsive-block"><table><tbody>`)
	for i, person := range people {
		fmt.Fprintf(&sb, `<tr class="%s"><td class="toggle-collapse"><button class="system-button">+</button></td><td>%d</td><td>%s</td></tr>`,
			rowParity(i), i+1, person.Name)
		sb.WriteString(`<tr class="collapsible-row"><td colspan="3"><table class="inner-table"><tbody>`)
		for _, rel := range person.Relations {
			fmt.Fprintf(&sb, `<tr><td>%s</td><td><a href="/ActiveConditionTabResult?uic=%s">%s</a> (EIK %s)</td></tr>`,
				rel.Label, rel.UIC, rel.Name, rel.UIC)
		}
		sb.WriteString(`</tbody></table></td></tr>`)
	}
	sb.WriteString(`</tbody></table></div>`)
	return sb.String()
}

func rowParity(i int) string {
	if i%2 == 0 {
		return "odd"
	}
	return "even"
}

// Owner builds a "sole owner of capital" relation.
func Owner(uic, name string) Relation {
	return Relation{Label: "23. Едноличен собственик на капитала", UIC: uic, Name: name}
}

// Manager builds a relation that is not ownership.
func Manager(uic, name string) Relation {
	return Relation{Label: "7. Управител", UIC: uic, Name: name}
}
