package auth

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password a signup accepts.
const MinPasswordLength = 6

// ValidationResult is the outcome of a form check.
type ValidationResult int

const (
	Valid ValidationResult = iota
	MissingFields
	InvalidEmail
	PasswordTooShort
	PasswordMismatch
)

func (r ValidationResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case MissingFields:
		return "missing_fields"
	case InvalidEmail:
		return "invalid_email"
	case PasswordTooShort:
		return "password_too_short"
	case PasswordMismatch:
		return "password_mismatch"
	default:
		return "unknown"
	}
}

// Err returns nil for Valid and a *ValidationError otherwise.
func (r ValidationResult) Err() error {
	if r == Valid {
		return nil
	}
	return &ValidationError{Result: r}
}

var ErrValidation = errors.New("form validation failed")

type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Result.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

var emailShape = regexp.MustCompile(`(?i)^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmailShape reports whether text looks like local@domain.tld. It does
// not check deliverability.
func ValidateEmailShape(text string) bool {
	return emailShape.MatchString(text)
}

// ValidateSignupForm checks, in order, that every field is filled, the email
// is well shaped, the password is long enough and both passwords match.
func ValidateSignupForm(email, password, confirmPassword string) ValidationResult {
	switch {
	case email == "" || password == "" || confirmPassword == "":
		return MissingFields
	case !ValidateEmailShape(email):
		return InvalidEmail
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return PasswordTooShort
	case password != confirmPassword:
		return PasswordMismatch
	}
	return Valid
}

// ValidateLoginForm only requires both fields.
func ValidateLoginForm(email, password string) ValidationResult {
	if email == "" || password == "" {
		return MissingFields
	}
	return Valid
}
