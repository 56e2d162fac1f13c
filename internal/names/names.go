// Package names canonicalizes person names into order-insensitive comparison keys.
package names

import (
	"sort"
	"strings"
	"unicode"
)

// Key is a canonical token signature of a display name.
// Two names with the same word set produce the same Key regardless of word order.
type Key string

// quoteReplacer strips straight and typographic quotes plus periods.
var quoteReplacer = strings.NewReplacer(
	`"`, "",
	"'", "",
	"’", "",
	"„", "",
	"”", "",
	"“", "",
	".", "",
)

// Normalize replaces non-breaking spaces, collapses whitespace runs, trims and lowercases.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Clean normalizes s and drops every rune outside [a-z а-я 0-9] and whitespace.
func Clean(s string) string {
	s = quoteReplacer.Replace(Normalize(s))

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if keepRune(r) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// NewKey builds the sorted-token key for a display name.
// Empty or unparseable input yields the empty Key.
func NewKey(s string) Key {
	tokens := strings.Fields(Clean(s))
	if len(tokens) == 0 {
		return ""
	}
	sort.Strings(tokens)
	return Key(strings.Join(tokens, " "))
}

// Match reports whether two keys identify the same person.
// An empty key never matches anything, including another empty key.
func Match(a, b Key) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'а' && r <= 'я':
		return true
	default:
		return unicode.IsSpace(r)
	}
}
