package service

import (
	"strings"
	"unicode"

	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the most bcrypt will hash.
	MaxPasswordBytes = 72
	passwordSpecials = `!@#$%^&*(),.?":{}|<>`
)

type passwordRule struct {
	message string
	ok      func(domain.Password) bool
}

var passwordRules = []passwordRule{
	{"Password must be at least 8 characters long", func(p domain.Password) bool { return len(p) >= MinPasswordLength }},
	{"Password must contain at least one uppercase letter", func(p domain.Password) bool { return strings.IndexFunc(p, isASCIIUpper) >= 0 }},
	{"Password must contain at least one lowercase letter", func(p domain.Password) bool { return strings.IndexFunc(p, isASCIILower) >= 0 }},
	{"Password must contain at least one number", func(p domain.Password) bool { return strings.IndexFunc(p, isASCIIDigit) >= 0 }},
	{"Password must contain at least one special character", func(p domain.Password) bool { return strings.ContainsAny(p, passwordSpecials) }},
	{"Password must be at most 72 bytes", func(p domain.Password) bool { return len(p) <= MaxPasswordBytes }},
}

// PasswordViolations lists every rule the password breaks, in a fixed order.
func PasswordViolations(password domain.Password) []string {
	var violations []string
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			violations = append(violations, rule.message)
		}
	}
	return violations
}

// ValidatePassword returns a 400 carrying every violated rule as details.
func ValidatePassword(password domain.Password) error {
	if v := PasswordViolations(password); len(v) > 0 {
		return errors.Validation("Password does not meet requirements", v...)
	}
	return nil
}

func isASCIIUpper(r rune) bool { return r < unicode.MaxASCII && unicode.IsUpper(r) }
func isASCIILower(r rune) bool { return r < unicode.MaxASCII && unicode.IsLower(r) }
func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }
