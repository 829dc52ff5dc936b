package auth

import (
	"errors"
	"strings"
	"unicode"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// Password validation failures. Each validator in the chain reports its
// own error so forms can list every problem at once.
var (
	ErrPasswordTooShort    = errors.New("auth: password shorter than 8 characters")
	ErrPasswordNumeric     = errors.New("auth: password is entirely numeric")
	ErrPasswordTooCommon   = errors.New("auth: password is too common")
	ErrPasswordTooSimilar  = errors.New("auth: password too similar to username or email")
)

// A short list of passwords seen at the top of breach corpora. Matching
// is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password":   {},
	"password1":  {},
	"12345678":   {},
	"123456789":  {},
	"qwerty123":  {},
	"iloveyou":   {},
	"letmein12":  {},
	"admin123":   {},
	"welcome1":   {},
	"sunshine1":  {},
	"passw0rd":   {},
	"librarian1": {},
}

// ValidatePassword runs the full validator chain and returns every
// failure, not just the first.
func ValidatePassword(password, username, email string) []error {
	var errs []error
	if len(password) < MinPasswordLength {
		errs = append(errs, ErrPasswordTooShort)
	}
	if isEntirelyNumeric(password) {
		errs = append(errs, ErrPasswordNumeric)
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		errs = append(errs, ErrPasswordTooCommon)
	}
	if similarToAttribute(password, username) || similarToAttribute(password, email) {
		errs = append(errs, ErrPasswordTooSimilar)
	}
	return errs
}

func isEntirelyNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// similarToAttribute flags passwords that contain, or are contained in,
// the user attribute (ignoring case and the email domain).
func similarToAttribute(password, attr string) bool {
	attr = strings.ToLower(strings.TrimSpace(attr))
	if at := strings.IndexByte(attr, '@'); at > 0 {
		attr = attr[:at]
	}
	if len(attr) < 4 {
		return false
	}
	pw := strings.ToLower(password)
	return strings.Contains(pw, attr) || strings.Contains(attr, pw)
}
