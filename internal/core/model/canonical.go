package model

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CanonicalPair orders two entry ids lexicographically so (A,B) and (B,A)
// share one identity. The same ordering is used by the validator and the
// persistence layer; keep it here, in one place.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// NormalizeDescription folds a description for comparison purposes only;
// display always uses the original trimmed text.
func NormalizeDescription(s string) string {
	return strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " "))
}

// IdentityKey is the dedup key for a contradiction: canonical pair plus
// normalized description.
func IdentityKey(item1, item2, description string) string {
	a, b := CanonicalPair(item1, item2)
	return a + "::" + b + "::" + NormalizeDescription(description)
}
