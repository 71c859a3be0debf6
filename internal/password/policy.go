package password

import (
	"errors"
	"unicode/utf8"
)

const (
	MinLength = 8
	// MaxBytes is the longest input bcrypt accepts.
	MaxBytes = 72
)

var (
	ErrTooShort  = errors.New("password: too short")
	ErrTooLong   = errors.New("password: longer than 72 bytes")
	ErrNoUpper   = errors.New("password: missing uppercase letter")
	ErrNoLower   = errors.New("password: missing lowercase letter")
	ErrNoDigit   = errors.New("password: missing digit")
	ErrNoSpecial = errors.New("password: missing special character")
)

// ValidateStrength reports the first unmet rule, checked in a fixed order.
func ValidateStrength(pw string) error {
	if utf8.RuneCountInString(pw) < MinLength {
		return ErrTooShort
	}
	if len(pw) > MaxBytes {
		return ErrTooLong
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	switch {
	case !upper:
		return ErrNoUpper
	case !lower:
		return ErrNoLower
	case !digit:
		return ErrNoDigit
	case !special:
		return ErrNoSpecial
	}
	return nil
}
