// Package email normalizes user-supplied email addresses.
package email

import (
	"strings"

	"github.com/asaskevich/govalidator"

	dErrors "landregistry/pkg/domain-errors"
)

// Normalize trims s and lowercases its domain. An empty address is allowed
// and returned as "". Display names ("Ann <ann@x.org>") are rejected.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if !govalidator.StringLength(s, "3", "254") || !govalidator.IsEmail(s) {
		return "", dErrors.New(dErrors.CodeValidation, "enter a valid email address")
	}
	at := strings.LastIndexByte(s, '@')
	return s[:at] + "@" + strings.ToLower(s[at+1:]), nil
}
