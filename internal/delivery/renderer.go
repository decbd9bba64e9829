// Package delivery turns case status changes into emails: it resolves the
// recipient set for a rule, renders the templates, and sends through the
// active credential for the country.
package delivery

import (
	"strings"

	"casebook_backend/internal/cases"
)

const missingValue = "(Not specified)"

// Render substitutes {{name}} placeholders with snapshot fields in a single
// left-to-right pass. Placeholder names are case-insensitive; unknown names
// render as "(Not specified)". Values are inserted literally, so a value
// containing a delimiter is never re-expanded. An unterminated {{ is kept
// as literal text.
func Render(template string, snapshot cases.Snapshot) string {
	fields := snapshot.Fields()

	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:start])
		name := strings.ToLower(strings.TrimSpace(rest[start+2 : start+2+end]))
		if value, ok := fields[name]; ok && value != "" {
			b.WriteString(value)
		} else {
			b.WriteString(missingValue)
		}
		rest = rest[start+2+end+2:]
	}
}
