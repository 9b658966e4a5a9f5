package models

import (
	"strings"

	"github.com/shopspring/decimal"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// CreateParcelRequest registers a parcel. CurrentOwner defaults to the actor.
type CreateParcelRequest struct {
	ParcelID     string           `json:"parcel_id"`
	Address      string           `json:"address"`
	Area         *decimal.Decimal `json:"area"`
	Coordinates  map[string]any   `json:"coordinates,omitempty"`
	CurrentOwner *id.UserID       `json:"current_owner,omitempty"`
}

func (r *CreateParcelRequest) Normalize() {
	r.ParcelID = strings.TrimSpace(r.ParcelID)
	r.Address = strings.TrimSpace(r.Address)
}

func (r *CreateParcelRequest) Validate() error {
	if r.ParcelID == "" {
		return dErrors.New(dErrors.CodeValidation, "parcel_id is required")
	}
	if len(r.ParcelID) > maxParcelNumberLen {
		return dErrors.New(dErrors.CodeValidation, "parcel_id must be 50 characters or less")
	}
	if r.Address == "" {
		return dErrors.New(dErrors.CodeValidation, "address is required")
	}
	if r.Area == nil {
		return dErrors.New(dErrors.CodeValidation, "area is required")
	}
	if err := ValidateArea(*r.Area); err != nil {
		return err
	}
	if r.CurrentOwner != nil && r.CurrentOwner.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "current_owner is invalid")
	}
	return nil
}

// UpdateParcelRequest patches the descriptive fields of a parcel. Nil fields
// are left unchanged; system-managed fields are not accepted at all.
type UpdateParcelRequest struct {
	Address     *string          `json:"address,omitempty"`
	Area        *decimal.Decimal `json:"area,omitempty"`
	Coordinates map[string]any   `json:"coordinates,omitempty"`
}

func (r *UpdateParcelRequest) Normalize() {
	if r.Address != nil {
		trimmed := strings.TrimSpace(*r.Address)
		r.Address = &trimmed
	}
}

func (r *UpdateParcelRequest) Validate() error {
	if r.Address != nil && *r.Address == "" {
		return dErrors.New(dErrors.CodeValidation, "address cannot be empty")
	}
	if r.Area != nil {
		if err := ValidateArea(*r.Area); err != nil {
			return err
		}
	}
	return nil
}
