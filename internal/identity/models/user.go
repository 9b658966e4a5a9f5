package models

import (
	"strings"
	"time"

	"landregistry/internal/policy"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Verification is the one-way flip performed by verifyUser.
var Verification = policy.OneWay[bool]{Name: "verify user", From: false, To: true}

// User is a registry account.
//
// Invariants:
//   - Username is non-empty and at most 150 characters
//   - NationalID is non-empty, at most 20 characters, and immutable
//   - Role is one of the known roles and never changes after registration
//   - IsVerified only ever moves from false to true
type User struct {
	ID                id.UserID `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	PhoneNumber       string    `json:"phone_number"`
	NationalID        string    `json:"national_id"`
	Role              id.Role   `json:"user_type"`
	IsVerified        bool      `json:"is_verified"`
	BlockchainAddress string    `json:"blockchain_address"`
	PasswordHash      string    `json:"-"` // Never serialize - contains bcrypt hash
	CreatedAt         time.Time `json:"date_joined"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewUser constructs an unverified user.
func NewUser(
	userID id.UserID,
	username string,
	nationalID string,
	role id.Role,
	passwordHash string,
	now time.Time,
) (*User, error) {
	username = strings.TrimSpace(username)
	nationalID = strings.TrimSpace(nationalID)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if len(username) > 150 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username must be 150 characters or less")
	}
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "national_id cannot be empty")
	}
	if len(nationalID) > 20 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "national_id must be 20 characters or less")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid user_type")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash cannot be empty")
	}
	return &User{
		ID:           userID,
		Username:     username,
		NationalID:   nationalID,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Actor returns the identity this user acts as.
func (u *User) Actor() id.Actor {
	return id.Actor{UserID: u.ID, Role: u.Role}
}
