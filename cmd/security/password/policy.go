package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var trivialPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
	"qwerty": {}, "qwerty123": {}, "11111111": {}, "iloveyou": {}, "letmein1": {},
}

// Validate checks pw against the policy. Length counts runes.
func (c Config) Validate(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && veryWeak(pw):
		return ErrWeakPassword
	}
	return nil
}

// veryWeak catches repeated characters, short all-digit PINs and a small list of
// well-known passwords. It is not a strength estimator.
func veryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	same, digits := true, true
	for _, r := range s {
		if r != first {
			same = false
		}
		if !unicode.IsDigit(r) {
			digits = false
		}
	}
	return same || (digits && utf8.RuneCountInString(s) < 12)
}
