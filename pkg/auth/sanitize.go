package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeName trims a display name and strips control characters. The
// result is stored verbatim; escaping happens where the name is rendered.
func SanitizeName(name string) string {
	return strings.TrimSpace(removeControlChars(name))
}

// ValidateStringLength checks the character count of value against min and
// max. A zero bound is not enforced.
func ValidateStringLength(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)

	if min > 0 && length < min {
		return fmt.Errorf("%s must be at least %d characters long", field, min)
	}

	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters long", field, max)
	}

	return nil
}

// removeControlChars drops control characters. Names are single-line, so
// newlines and tabs go too.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
