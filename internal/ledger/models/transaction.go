package models

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"landregistry/internal/policy"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts status names case-insensitively. Empty input yields "".
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	st := Status(strings.ToUpper(s))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown transaction status")
	}
	return st, nil
}

// Approval is the one-way flip performed by approve.
var Approval = policy.OneWay[Status]{Name: "approve transaction", From: StatusPending, To: StatusCompleted}

const priceScale = 2

// maxPrice is the exclusive upper bound of NUMERIC(15,2).
var maxPrice = decimal.New(1, 13)

// Transaction is a proposed or completed transfer of a parcel between two
// users.
//
// Invariants:
//   - FromOwner and ToOwner are distinct
//   - Price is positive with at most two decimal places
//   - Status only moves PENDING -> COMPLETED through approval, and
//     CompletedAt is set exactly when Status is COMPLETED
//   - a non-PENDING transaction is never modified again
type Transaction struct {
	ID              id.TransactionID `json:"id"`
	Parcel          id.ParcelID      `json:"parcel"`
	FromOwner       id.UserID        `json:"from_owner"`
	ToOwner         id.UserID        `json:"to_owner"`
	Price           decimal.Decimal  `json:"price"`
	Status          Status           `json:"status"`
	TransactionHash string           `json:"transaction_hash"`
	Documents       []string         `json:"documents"`
	CreatedAt       time.Time        `json:"transaction_date"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
}

// NewTransaction constructs a PENDING transfer.
func NewTransaction(
	transactionID id.TransactionID,
	parcel id.ParcelID,
	from id.UserID,
	to id.UserID,
	price decimal.Decimal,
	documents []string,
	now time.Time,
) (*Transaction, error) {
	if parcel.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "parcel cannot be empty")
	}
	if from.IsNil() || to.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "from_owner and to_owner are required")
	}
	if from == to {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "from_owner and to_owner must differ")
	}
	if err := ValidatePrice(price); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	if documents == nil {
		documents = []string{}
	}
	return &Transaction{
		ID:        transactionID,
		Parcel:    parcel,
		FromOwner: from,
		ToOwner:   to,
		Price:     price,
		Status:    StatusPending,
		Documents: slices.Clone(documents),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidatePrice checks a transfer price.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "price must be greater than zero")
	}
	if !price.Equal(price.Truncate(priceScale)) {
		return dErrors.New(dErrors.CodeValidation, "price must have at most 2 decimal places")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return dErrors.New(dErrors.CodeValidation, "price is too large")
	}
	return nil
}

// Parties returns the users who may see the transaction without privilege.
func (t *Transaction) Parties() []id.UserID {
	return []id.UserID{t.FromOwner, t.ToOwner}
}

// Clone returns a copy that shares no mutable state with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Documents = slices.Clone(t.Documents)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// AnchorRecord is the canonical snapshot a transaction hash commits to.
func (t *Transaction) AnchorRecord() any {
	return struct {
		ID        string `json:"id"`
		Parcel    string `json:"parcel"`
		FromOwner string `json:"from_owner"`
		ToOwner   string `json:"to_owner"`
		Price     string `json:"price"`
		CreatedAt string `json:"transaction_date"`
	}{
		ID:        t.ID.String(),
		Parcel:    t.Parcel.String(),
		FromOwner: t.FromOwner.String(),
		ToOwner:   t.ToOwner.String(),
		Price:     t.Price.StringFixed(priceScale),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ListFilter narrows a transaction listing. Zero values match everything.
type ListFilter struct {
	Status Status
	Parcel id.ParcelID
}

func (f ListFilter) Matches(t *Transaction) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.Parcel.IsNil() && t.Parcel != f.Parcel {
		return false
	}
	return true
}
