package models

import (
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"landregistry/internal/policy"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Status is the lifecycle state of a parcel.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusDisputed Status = "DISPUTED"
	StatusInactive Status = "INACTIVE"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDisputed, StatusInactive:
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
		return "", dErrors.New(dErrors.CodeValidation, "unknown parcel status")
	}
	return st, nil
}

// Verification is the one-way flip performed by verify.
var Verification = policy.OneWay[Status]{Name: "verify parcel", From: StatusPending, To: StatusActive}

const (
	maxParcelNumberLen = 50
	areaScale          = 2
)

// maxArea is the exclusive upper bound of NUMERIC(12,2).
var maxArea = decimal.New(1, 10)

// Parcel is a registered plot of land.
//
// Invariants:
//   - ParcelNumber is non-empty, unique and never changes
//   - Area is positive with at most two decimal places
//   - CurrentOwner changes only when a transfer is approved
//   - Status only moves PENDING -> ACTIVE through verification
type Parcel struct {
	ID             id.ParcelID     `json:"id"`
	ParcelNumber   string          `json:"parcel_id"`
	Address        string          `json:"address"`
	Area           decimal.Decimal `json:"area"`
	Coordinates    map[string]any  `json:"coordinates"`
	CurrentOwner   id.UserID       `json:"current_owner"`
	Status         Status          `json:"status"`
	BlockchainHash string          `json:"blockchain_hash"`
	RegisteredAt   time.Time       `json:"registration_date"`
	UpdatedAt      time.Time       `json:"last_updated"`
}

// NewParcel constructs a PENDING parcel.
func NewParcel(
	parcelID id.ParcelID,
	parcelNumber string,
	address string,
	area decimal.Decimal,
	coordinates map[string]any,
	owner id.UserID,
	now time.Time,
) (*Parcel, error) {
	parcelNumber = strings.TrimSpace(parcelNumber)
	address = strings.TrimSpace(address)
	if parcelNumber == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "parcel_id cannot be empty")
	}
	if len(parcelNumber) > maxParcelNumberLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "parcel_id must be 50 characters or less")
	}
	if address == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "address cannot be empty")
	}
	if err := ValidateArea(area); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "current_owner cannot be empty")
	}
	if coordinates == nil {
		coordinates = map[string]any{}
	}

	return &Parcel{
		ID:           parcelID,
		ParcelNumber: parcelNumber,
		Address:      address,
		Area:         area,
		Coordinates:  maps.Clone(coordinates),
		CurrentOwner: owner,
		Status:       StatusPending,
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

// ValidateArea checks an area in square metres.
func ValidateArea(area decimal.Decimal) error {
	if !area.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "area must be greater than zero")
	}
	if !area.Equal(area.Truncate(areaScale)) {
		return dErrors.New(dErrors.CodeValidation, "area must have at most 2 decimal places")
	}
	if area.GreaterThanOrEqual(maxArea) {
		return dErrors.New(dErrors.CodeValidation, "area is too large")
	}
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p *Parcel) Clone() *Parcel {
	c := *p
	c.Coordinates = maps.Clone(p.Coordinates)
	return &c
}

// AnchorRecord is the canonical snapshot a parcel's blockchain hash commits to.
func (p *Parcel) AnchorRecord() any {
	return struct {
		ID           string         `json:"id"`
		ParcelNumber string         `json:"parcel_id"`
		Address      string         `json:"address"`
		Area         string         `json:"area"`
		Coordinates  map[string]any `json:"coordinates"`
		Owner        string         `json:"current_owner"`
		RegisteredAt string         `json:"registration_date"`
	}{
		ID:           p.ID.String(),
		ParcelNumber: p.ParcelNumber,
		Address:      p.Address,
		Area:         p.Area.StringFixed(areaScale),
		Coordinates:  p.Coordinates,
		Owner:        p.CurrentOwner.String(),
		RegisteredAt: p.RegisteredAt.UTC().Format(time.RFC3339Nano),
	}
}

// ListFilter narrows a parcel listing. Zero values match everything.
type ListFilter struct {
	Status Status
}

func (f ListFilter) Matches(p *Parcel) bool {
	return f.Status == "" || p.Status == f.Status
}
