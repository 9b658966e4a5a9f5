package models

import (
	"github.com/shopspring/decimal"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/strings"
)

// CreateTransactionRequest proposes a transfer of a parcel.
type CreateTransactionRequest struct {
	Parcel    id.ParcelID      `json:"parcel"`
	FromOwner id.UserID        `json:"from_owner"`
	ToOwner   id.UserID        `json:"to_owner"`
	Price     *decimal.Decimal `json:"price"`
	Documents []string         `json:"documents,omitempty"`
}

func (r *CreateTransactionRequest) Normalize() {
	r.Documents = strings.DedupeAndTrim(r.Documents)
}

func (r *CreateTransactionRequest) Validate() error {
	if r.Parcel.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "parcel is required")
	}
	if r.FromOwner.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "from_owner is required")
	}
	if r.ToOwner.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "to_owner is required")
	}
	if r.FromOwner == r.ToOwner {
		return dErrors.New(dErrors.CodeValidation, "from_owner and to_owner must differ")
	}
	if r.Price == nil {
		return dErrors.New(dErrors.CodeValidation, "price is required")
	}
	return ValidatePrice(*r.Price)
}

// UpdateTransactionRequest amends a pending transfer. Nil fields are left
// unchanged; parties and status cannot be changed here.
type UpdateTransactionRequest struct {
	Price     *decimal.Decimal `json:"price,omitempty"`
	Documents *[]string        `json:"documents,omitempty"`
}

func (r *UpdateTransactionRequest) Normalize() {
	if r.Documents != nil {
		docs := strings.DedupeAndTrim(*r.Documents)
		r.Documents = &docs
	}
}

func (r *UpdateTransactionRequest) Validate() error {
	if r.Price != nil {
		return ValidatePrice(*r.Price)
	}
	return nil
}
