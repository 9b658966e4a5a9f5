package models

import (
	"strings"

	dErrors "landregistry/pkg/domain-errors"
)

// LoginRequest exchanges credentials for a token pair.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func (r *LoginRequest) Validate() error {
	r.Normalize()
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

func (r *RefreshRequest) Validate() error {
	r.Refresh = strings.TrimSpace(r.Refresh)
	if r.Refresh == "" {
		return dErrors.New(dErrors.CodeValidation, "refresh is required")
	}
	return nil
}

// LogoutRequest optionally names a refresh token to revoke alongside the
// access token the request was made with.
type LogoutRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

func (r *LogoutRequest) Validate() error {
	r.Refresh = strings.TrimSpace(r.Refresh)
	return nil
}

// TokenPair is the login response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AccessToken is the refresh response.
type AccessToken struct {
	Access string `json:"access"`
}
