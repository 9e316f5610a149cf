package app

import "github.com/vasiliy-maslov/user-portal/internal/auth"

const (
	LoginFailedMessage  = "Login failed. Please check your credentials and try again."
	SignupFailedMessage = "Sign up failed. Please try again."
)

// ValidationMessage is the text shown to the user for a failed form check.
func ValidationMessage(r auth.ValidationResult) string {
	switch r {
	case auth.MissingFields:
		return "Please fill in all fields."
	case auth.InvalidEmail:
		return "Please enter a valid email address."
	case auth.PasswordTooShort:
		return "Password must be at least 6 characters long."
	case auth.PasswordMismatch:
		return "Passwords do not match."
	default:
		return ""
	}
}
