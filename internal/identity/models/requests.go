package models

import (
	"errors"
	"strings"

	"landregistry/internal/anchor"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/email"
)

// RegisterRequest is the self-service (or admin-driven) account creation payload.
type RegisterRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	PhoneNumber       string `json:"phone_number"`
	NationalID        string `json:"national_id"`
	UserType          string `json:"user_type"`
	BlockchainAddress string `json:"blockchain_address"`

	role id.Role
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.BlockchainAddress = strings.TrimSpace(r.BlockchainAddress)
}

// Validate checks required fields and formats, normalizing email, role and
// blockchain address in place.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if r.NationalID == "" {
		return dErrors.New(dErrors.CodeValidation, "national_id is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if len(r.PhoneNumber) > 15 {
		return dErrors.New(dErrors.CodeValidation, "phone_number must be 15 characters or less")
	}
	role, err := id.ParseRole(r.UserType)
	if err != nil {
		return err
	}
	r.role = role
	if r.Email, err = email.Normalize(r.Email); err != nil {
		return err
	}
	if r.BlockchainAddress != "" {
		if r.BlockchainAddress, err = anchor.NormalizeAddress(r.BlockchainAddress); err != nil {
			return err
		}
	}
	return ValidatePassword(r.Password, r.Username)
}

// Role is the requested role; CITIZEN when none was given. Valid after Validate.
func (r *RegisterRequest) Role() id.Role {
	if r.role == "" {
		return id.RoleCitizen
	}
	return r.role
}

// UpdateUserRequest patches profile fields. National ID, role and
// verification status are not patchable.
type UpdateUserRequest struct {
	Email             *string `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	PhoneNumber       *string `json:"phone_number"`
	BlockchainAddress *string `json:"blockchain_address"`
}

func (r *UpdateUserRequest) Normalize() {
	if r == nil {
		return
	}
	trim(r.FirstName)
	trim(r.LastName)
	trim(r.PhoneNumber)
	trim(r.BlockchainAddress)
}

func (r *UpdateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.PhoneNumber != nil && len(*r.PhoneNumber) > 15 {
		return dErrors.New(dErrors.CodeValidation, "phone_number must be 15 characters or less")
	}
	if r.Email != nil {
		normalized, err := email.Normalize(*r.Email)
		if err != nil {
			return err
		}
		r.Email = &normalized
	}
	if r.BlockchainAddress != nil && *r.BlockchainAddress != "" {
		normalized, err := anchor.NormalizeAddress(*r.BlockchainAddress)
		if err != nil {
			return err
		}
		r.BlockchainAddress = &normalized
	}
	return nil
}

// ChangePasswordRequest replaces the caller's own password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	var errs []error
	if r.CurrentPassword == "" {
		errs = append(errs, errors.New("current_password is required"))
	}
	if r.NewPassword == "" {
		errs = append(errs, errors.New("new_password is required"))
	}
	if len(errs) > 0 {
		return dErrors.Wrap(errors.Join(errs...), dErrors.CodeValidation, "invalid password change request")
	}
	return nil
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
