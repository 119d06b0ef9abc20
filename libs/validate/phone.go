// Package validate holds input checks shared by more than one service.
package validate

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// NormalizePhone strips spaces, dashes and parentheses. It does not add a
// country code.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// E164 reports whether phone is in +<country><number> form.
func E164(phone string) bool {
	return e164.MatchString(phone)
}
