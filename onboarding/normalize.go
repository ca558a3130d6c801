package onboarding

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// NormalizePhone keeps digits and a single leading '+'.
func NormalizePhone(raw string) (string, error) {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	var b strings.Builder
	digits := 0
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", &LoginError{Code: "phone_invalid", Message: "Phone number looks invalid. Send it in international format, e.g. +998901234567.", Retry: true}
	}
	return b.String(), nil
}

// NormalizeCode folds compatibility characters such as full-width digits and
// drops everything that is not an ASCII digit, so "1.2.3.4.5" becomes
// "12345".
func NormalizeCode(raw string) (string, error) {
	s := norm.NFKC.String(raw)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", &LoginError{Code: "code_invalid", Message: "The code must contain digits.", Retry: true}
	}
	return b.String(), nil
}
