package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"landregistry/internal/document/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type documentRow struct {
	ID                  string     `gorm:"primaryKey;size:36"`
	Title               string     `gorm:"size:255;not null"`
	DocumentType        string     `gorm:"size:20;not null;index"`
	ParcelID            string     `gorm:"size:36;not null;index"`
	UploadedBy          string     `gorm:"size:36;not null;index"`
	IPFSHash            string     `gorm:"column:ipfs_hash;not null;default:''"`
	BlockchainReference string     `gorm:"not null;default:''"`
	IsVerified          bool       `gorm:"not null;default:false"`
	VerifiedBy          *string    `gorm:"size:36"`
	VerifiedAt          *time.Time
	Metadata            string     `gorm:"not null;default:'{}'"`
	UploadedAt          time.Time  `gorm:"not null;index"`
	UpdatedAt           time.Time
}

func (documentRow) TableName() string { return "documents" }

// SQLiteStore persists documents in an embedded SQLite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLite migrates the documents table and returns the store.
func NewSQLite(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, doc *models.Document) error {
	row, err := toDocumentRow(doc)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create document: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	var row documentRow
	if err := s.db.WithContext(ctx).Where("id = ?", docID.String()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return row.toModel()
}

// List returns documents uploaded by one of uploaders, newest first. A nil
// uploaders slice lists everything.
func (s *SQLiteStore) List(ctx context.Context, uploaders []id.UserID, filter models.ListFilter) ([]*models.Document, error) {
	q := s.db.WithContext(ctx).Model(&documentRow{})
	if uploaders != nil {
		if len(uploaders) == 0 {
			return []*models.Document{}, nil
		}
		q = q.Where("uploaded_by IN ?", id.UserIDStrings(uploaders))
	}
	if !filter.Parcel.IsNil() {
		q = q.Where("parcel_id = ?", filter.Parcel.String())
	}
	if filter.Type != "" {
		q = q.Where("document_type = ?", string(filter.Type))
	}
	var rows []documentRow
	if err := q.Order("uploaded_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]*models.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sortNewestFirst(docs)
	return docs, nil
}

// Update writes title, type and metadata while the document is unverified.
func (s *SQLiteStore) Update(ctx context.Context, doc *models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("id = ? AND is_verified = ?", doc.ID.String(), false).
		Updates(map[string]any{
			"title":         doc.Title,
			"document_type": string(doc.DocumentType),
			"metadata":      string(meta),
			"updated_at":    doc.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update document: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, doc.ID)
}

// Verify marks an unverified document as verified by verifier.
func (s *SQLiteStore) Verify(ctx context.Context, docID id.DocumentID, verifier id.UserID, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("id = ? AND is_verified = ?", docID.String(), false).
		Updates(map[string]any{
			"is_verified": true,
			"verified_by": verifier.String(),
			"verified_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("verify document: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, docID)
}

func (s *SQLiteStore) explainMiss(ctx context.Context, affected int64, docID id.DocumentID) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, docID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func toDocumentRow(doc *models.Document) (documentRow, error) {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return documentRow{}, fmt.Errorf("encode metadata: %w", err)
	}
	row := documentRow{
		ID:                  doc.ID.String(),
		Title:               doc.Title,
		DocumentType:        string(doc.DocumentType),
		ParcelID:            doc.Parcel.String(),
		UploadedBy:          doc.UploadedBy.String(),
		IPFSHash:            doc.IPFSHash,
		BlockchainReference: doc.BlockchainReference,
		IsVerified:          doc.IsVerified,
		VerifiedAt:          doc.VerifiedAt,
		Metadata:            string(meta),
		UploadedAt:          doc.UploadedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	if doc.VerifiedBy != nil {
		by := doc.VerifiedBy.String()
		row.VerifiedBy = &by
	}
	return row, nil
}

func (r *documentRow) toModel() (*models.Document, error) {
	docID, err := id.ParseDocumentID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("stored document id %q: %w", r.ID, err)
	}
	parcelID, err := id.ParseParcelID(r.ParcelID)
	if err != nil {
		return nil, fmt.Errorf("stored parcel id %q: %w", r.ParcelID, err)
	}
	uploader, err := id.ParseUserID(r.UploadedBy)
	if err != nil {
		return nil, fmt.Errorf("stored uploader %q: %w", r.UploadedBy, err)
	}
	doc := &models.Document{
		ID:                  docID,
		Title:               r.Title,
		DocumentType:        models.DocumentType(r.DocumentType),
		Parcel:              parcelID,
		UploadedBy:          uploader,
		IPFSHash:            r.IPFSHash,
		BlockchainReference: r.BlockchainReference,
		IsVerified:          r.IsVerified,
		VerifiedAt:          r.VerifiedAt,
		UploadedAt:          r.UploadedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.VerifiedBy != nil {
		by, err := id.ParseUserID(*r.VerifiedBy)
		if err != nil {
			return nil, fmt.Errorf("stored verifier %q: %w", *r.VerifiedBy, err)
		}
		doc.VerifiedBy = &by
	}
	if err := decodeMetadata([]byte(r.Metadata), doc); err != nil {
		return nil, err
	}
	return doc, nil
}
