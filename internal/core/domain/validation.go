package domain

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateUsername checks registration/login username constraints.
// Bounds count characters, not bytes, so multibyte names are measured
// the way users see them.
func ValidateUsername(username string) error {
	if n := utf8.RuneCountInString(username); n < 6 || n > 20 {
		return fmt.Errorf("username must be 6-20 characters, got %d", n)
	}
	return nil
}

// ValidateEmail performs a shallow syntactic check. Deliverability is
// not verified.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > 255 {
		return fmt.Errorf("email exceeds 255 characters")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("email '%s' is not valid", email)
	}
	return nil
}

// ValidatePassword enforces the minimum plaintext password policy.
func ValidatePassword(password string) error {
	if n := utf8.RuneCountInString(password); n < 8 || n > 50 {
		return fmt.Errorf("password must be 8-50 characters")
	}
	return nil
}

// ValidateLabel checks API key label constraints.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if len(label) > 50 {
		return fmt.Errorf("label exceeds 50 characters")
	}
	return nil
}

// ValidateDescription checks the optional API key description.
func ValidateDescription(description string) error {
	if len(description) > 150 {
		return fmt.Errorf("description exceeds 150 characters")
	}
	return nil
}
