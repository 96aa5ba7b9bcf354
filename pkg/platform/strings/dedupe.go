// Package strings normalizes user-entered string lists.
package strings

import (
	"strings"
)

// Normalize trims each element and drops empties and duplicates, keeping the
// first occurrence. With fold, elements are lower-cased before comparison and
// returned lower-cased.
//
//	Normalize([]string{" CBSE ", "cbse", "", "ICSE"}, true)
//	// []string{"cbse", "icse"}
func Normalize(values []string, fold bool) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
