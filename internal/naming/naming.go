// Package naming derives Grafana resource names and identifiers from edge ids.
// Everything here is pure and deterministic.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

// MaxIdentifierLen is the longest identifier suffix Grafana accepts in a uid.
const MaxIdentifierLen = 36

var separators = strings.NewReplacer("-", " ", "_", " ")

// DisplayName turns "edge-a" into "Edge A". Each run of cased letters is
// title-cased on its own, so "site2b" becomes "Site2B" and "edge.a" becomes
// "Edge.A".
func DisplayName(edge model.EdgeID) string {
	s := separators.Replace(edge)
	titler := cases.Title(language.Und)

	var b strings.Builder
	for len(s) > 0 {
		i := strings.IndexFunc(s, isCased)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		s = s[i:]

		j := strings.IndexFunc(s, func(r rune) bool { return !isCased(r) })
		if j < 0 {
			j = len(s)
		}
		b.WriteString(titler.String(s[:j]))
		s = s[j:]
	}
	return b.String()
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

// DatasourceName is the datasource name of edge, e.g. "Mimir - Edge A".
func DatasourceName(edge model.EdgeID, prefix string) string {
	return prefix + DisplayName(edge)
}

// SafeIdentifier lowercases edge, maps every character outside [a-z0-9_-]
// to '-' and truncates the result to MaxIdentifierLen characters. An empty
// edge yields "-", so the result is never empty.
func SafeIdentifier(edge model.EdgeID) string {
	if edge == "" {
		return "-"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(edge) {
		if b.Len() == MaxIdentifierLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
