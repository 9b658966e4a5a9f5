package models

import (
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"landregistry/internal/policy"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// DocumentType classifies a parcel document.
type DocumentType string

const (
	TypeTitleDeed  DocumentType = "TITLE_DEED"
	TypeSurveyPlan DocumentType = "SURVEY_PLAN"
	TypeIDProof    DocumentType = "ID_PROOF"
	TypeTaxReceipt DocumentType = "TAX_RECEIPT"
	TypeOther      DocumentType = "OTHER"
)

func (t DocumentType) IsValid() bool {
	switch t {
	case TypeTitleDeed, TypeSurveyPlan, TypeIDProof, TypeTaxReceipt, TypeOther:
		return true
	}
	return false
}

// ParseDocumentType accepts type names case-insensitively. Empty input yields "".
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	t := DocumentType(strings.ToUpper(s))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown document_type")
	}
	return t, nil
}

// Verification is the one-way flip performed by verifyDocument.
var Verification = policy.OneWay[bool]{Name: "verify document", From: false, To: true}

const maxTitleLen = 255

// Document is the metadata of a file attached to a parcel. The bytes live in
// content-addressed storage; IPFSHash is their address.
//
// Invariants:
//   - UploadedBy is the actor who created the record and never changes
//   - IsVerified only moves false -> true; VerifiedBy and VerifiedAt are set
//     exactly when IsVerified is true and keep the first verifier
//   - a verified document is never modified again
type Document struct {
	ID                  id.DocumentID  `json:"id"`
	Title               string         `json:"title"`
	DocumentType        DocumentType   `json:"document_type"`
	Parcel              id.ParcelID    `json:"parcel"`
	UploadedBy          id.UserID      `json:"uploaded_by"`
	IPFSHash            string         `json:"ipfs_hash"`
	BlockchainReference string         `json:"blockchain_reference"`
	IsVerified          bool           `json:"is_verified"`
	VerifiedBy          *id.UserID     `json:"verified_by"`
	VerifiedAt          *time.Time     `json:"verification_date"`
	Metadata            map[string]any `json:"metadata"`
	UploadedAt          time.Time      `json:"upload_date"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// NewDocument constructs an unverified document.
func NewDocument(
	documentID id.DocumentID,
	title string,
	docType DocumentType,
	parcel id.ParcelID,
	uploadedBy id.UserID,
	ipfsHash string,
	metadata map[string]any,
	now time.Time,
) (*Document, error) {
	title = strings.TrimSpace(title)
	if err := ValidateTitle(title); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	if !docType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid document_type")
	}
	if parcel.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "parcel cannot be empty")
	}
	if uploadedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploaded_by cannot be empty")
	}
	return &Document{
		ID:           documentID,
		Title:        title,
		DocumentType: docType,
		Parcel:       parcel,
		UploadedBy:   uploadedBy,
		IPFSHash:     ipfsHash,
		Metadata:     cloneMetadata(metadata),
		UploadedAt:   now,
		UpdatedAt:    now,
	}, nil
}

func ValidateTitle(title string) error {
	if title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "title must be 255 characters or less")
	}
	return nil
}

// Clone returns a copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	c := *d
	c.Metadata = cloneMetadata(d.Metadata)
	if d.VerifiedBy != nil {
		by := *d.VerifiedBy
		c.VerifiedBy = &by
	}
	if d.VerifiedAt != nil {
		at := *d.VerifiedAt
		c.VerifiedAt = &at
	}
	return &c
}

// AnchorRecord is the canonical snapshot a blockchain reference commits to.
func (d *Document) AnchorRecord() any {
	return struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		DocumentType string `json:"document_type"`
		Parcel       string `json:"parcel"`
		UploadedBy   string `json:"uploaded_by"`
		IPFSHash     string `json:"ipfs_hash"`
		UploadedAt   string `json:"upload_date"`
	}{
		ID:           d.ID.String(),
		Title:        d.Title,
		DocumentType: string(d.DocumentType),
		Parcel:       d.Parcel.String(),
		UploadedBy:   d.UploadedBy.String(),
		IPFSHash:     d.IPFSHash,
		UploadedAt:   d.UploadedAt.UTC().Format(time.RFC3339Nano),
	}
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

// ListFilter narrows a document listing. Zero values match everything.
type ListFilter struct {
	Parcel id.ParcelID
	Type   DocumentType
}

func (f ListFilter) Matches(d *Document) bool {
	if !f.Parcel.IsNil() && d.Parcel != f.Parcel {
		return false
	}
	if f.Type != "" && d.DocumentType != f.Type {
		return false
	}
	return true
}
