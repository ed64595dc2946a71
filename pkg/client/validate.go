package client

import "regexp"

const (
	UsernameMinLength = 3
	UsernameMaxLength = 20
	EmailMaxLength    = 254
	PasswordMinLength = 8
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateUsername applies the local format rules for usernames.
func ValidateUsername(name string) error {
	switch {
	case len(name) < UsernameMinLength:
		return &ValidationError{Field: "username", Reason: "must be at least 3 characters"}
	case len(name) > UsernameMaxLength:
		return &ValidationError{Field: "username", Reason: "must be at most 20 characters"}
	case !usernamePattern.MatchString(name):
		return &ValidationError{Field: "username", Reason: "may only contain letters, digits, '_', '.' and '-'"}
	}
	return nil
}

// ValidateEmail applies the local format rules for email addresses.
func ValidateEmail(email string) error {
	switch {
	case email == "":
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	case len(email) > EmailMaxLength:
		return &ValidationError{Field: "email", Reason: "is too long"}
	case !emailPattern.MatchString(email):
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

// ValidateSignup checks the whole registration form locally.
func ValidateSignup(req SignupRequest) error {
	if err := ValidateUsername(req.Username); err != nil {
		return err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < PasswordMinLength {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if req.Password != req.ConfirmPassword {
		return &ValidationError{Field: "confirmPassword", Reason: "does not match password"}
	}
	return nil
}
