// Package email derives display values from email addresses.
package email

import (
	"strings"
	"unicode"
)

// GreetingName guesses a first name from an address for salutations when no
// profile name is known: "asha.patil@x.edu" becomes "Asha". Falls back to
// "Student".
func GreetingName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "Student"
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
