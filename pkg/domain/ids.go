// Package domain holds the identifiers and shared value types that cross
// module boundaries. IDs are distinct types over uuid.UUID so a ParcelID can
// never be passed where a UserID is expected.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "landregistry/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	ParcelID      uuid.UUID
	TransactionID uuid.UUID
	DocumentID    uuid.UUID
)

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewParcelID() ParcelID           { return ParcelID(uuid.New()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }

func (u UserID) String() string        { return uuid.UUID(u).String() }
func (p ParcelID) String() string      { return uuid.UUID(p).String() }
func (t TransactionID) String() string { return uuid.UUID(t).String() }
func (d DocumentID) String() string    { return uuid.UUID(d).String() }

func (u UserID) IsNil() bool        { return uuid.UUID(u) == uuid.Nil }
func (p ParcelID) IsNil() bool      { return uuid.UUID(p) == uuid.Nil }
func (t TransactionID) IsNil() bool { return uuid.UUID(t) == uuid.Nil }
func (d DocumentID) IsNil() bool    { return uuid.UUID(d) == uuid.Nil }

func (u UserID) MarshalText() ([]byte, error)        { return uuid.UUID(u).MarshalText() }
func (p ParcelID) MarshalText() ([]byte, error)      { return uuid.UUID(p).MarshalText() }
func (t TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(t).MarshalText() }
func (d DocumentID) MarshalText() ([]byte, error)    { return uuid.UUID(d).MarshalText() }

func (u *UserID) UnmarshalText(b []byte) error        { return unmarshalID((*uuid.UUID)(u), b, "user ID") }
func (p *ParcelID) UnmarshalText(b []byte) error      { return unmarshalID((*uuid.UUID)(p), b, "parcel ID") }
func (t *TransactionID) UnmarshalText(b []byte) error { return unmarshalID((*uuid.UUID)(t), b, "transaction ID") }
func (d *DocumentID) UnmarshalText(b []byte) error    { return unmarshalID((*uuid.UUID)(d), b, "document ID") }

// ParseUserID parses a user ID at a trust boundary. The nil UUID is rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseID(s, "user ID")
	return UserID(u), err
}

func ParseParcelID(s string) (ParcelID, error) {
	u, err := parseID(s, "parcel ID")
	return ParcelID(u), err
}

func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseID(s, "transaction ID")
	return TransactionID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseID(s, "document ID")
	return DocumentID(u), err
}

// UserIDStrings renders a set of user IDs for store queries.
func UserIDStrings(ids []UserID) []string {
	out := make([]string, len(ids))
	for i, u := range ids {
		out[i] = u.String()
	}
	return out
}

func parseID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	if !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

func unmarshalID(dst *uuid.UUID, b []byte, label string) error {
	u, err := parseID(string(b), label)
	if err != nil {
		return err
	}
	*dst = u
	return nil
}
