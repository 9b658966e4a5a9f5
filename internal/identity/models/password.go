package models

import (
	"slices"
	"strings"
	"unicode"

	dErrors "landregistry/pkg/domain-errors"
)

const minPasswordLength = 8

var commonPasswords = []string{
	"password", "password1", "passw0rd", "12345678", "123456789",
	"qwerty123", "iloveyou", "admin123", "letmein1", "welcome1", "abc12345",
}

// ValidatePassword enforces the account password policy: at least 8
// characters, not entirely numeric, not a common password, and not
// containing the username.
func ValidatePassword(password, username string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if isNumeric(password) {
		return dErrors.New(dErrors.CodeValidation, "password cannot be entirely numeric")
	}
	if slices.Contains(commonPasswords, strings.ToLower(password)) {
		return dErrors.New(dErrors.CodeValidation, "password is too common")
	}
	username = strings.TrimSpace(username)
	if username != "" && strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return dErrors.New(dErrors.CodeValidation, "password is too similar to the username")
	}
	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
