package models

import (
	"strings"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// CreateDocumentRequest attaches a document to a parcel. When Content is set
// the stored hash is its content address and IPFSHash is ignored.
type CreateDocumentRequest struct {
	Title        string         `json:"title"`
	DocumentType DocumentType   `json:"document_type"`
	Parcel       id.ParcelID    `json:"parcel"`
	IPFSHash     string         `json:"ipfs_hash,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	Content []byte `json:"-"`
}

func (r *CreateDocumentRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.DocumentType = DocumentType(strings.ToUpper(strings.TrimSpace(string(r.DocumentType))))
	r.IPFSHash = strings.TrimSpace(r.IPFSHash)
}

func (r *CreateDocumentRequest) Validate() error {
	if err := ValidateTitle(r.Title); err != nil {
		return err
	}
	if r.DocumentType == "" {
		return dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	if !r.DocumentType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown document_type")
	}
	if r.Parcel.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "parcel is required")
	}
	return nil
}

// UpdateDocumentRequest patches the descriptive fields of an unverified
// document. Nil fields are left unchanged.
type UpdateDocumentRequest struct {
	Title        *string        `json:"title,omitempty"`
	DocumentType *DocumentType  `json:"document_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (r *UpdateDocumentRequest) Normalize() {
	if r.Title != nil {
		trimmed := strings.TrimSpace(*r.Title)
		r.Title = &trimmed
	}
	if r.DocumentType != nil {
		t := DocumentType(strings.ToUpper(strings.TrimSpace(string(*r.DocumentType))))
		r.DocumentType = &t
	}
}

func (r *UpdateDocumentRequest) Validate() error {
	if r.Title != nil {
		if err := ValidateTitle(*r.Title); err != nil {
			return err
		}
	}
	if r.DocumentType != nil && !r.DocumentType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown document_type")
	}
	return nil
}
