package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landregistry/internal/document/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// PostgresStore persists documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectDocuments = `
	SELECT id, title, document_type, parcel_id, uploaded_by, ipfs_hash,
		blockchain_reference, is_verified, verified_by, verified_at, metadata,
		uploaded_at, updated_at
	FROM documents
`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		INSERT INTO documents (
			id, title, document_type, parcel_id, uploaded_by, ipfs_hash,
			blockchain_reference, is_verified, metadata, uploaded_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		doc.Title,
		string(doc.DocumentType),
		uuid.UUID(doc.Parcel),
		uuid.UUID(doc.UploadedBy),
		doc.IPFSHash,
		doc.BlockchainReference,
		doc.IsVerified,
		string(meta),
		doc.UploadedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create document: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocuments+` WHERE id = $1`, uuid.UUID(docID))
	return scanDocument(row)
}

// List returns documents uploaded by one of uploaders, newest first. A nil
// uploaders slice lists everything.
func (s *PostgresStore) List(ctx context.Context, uploaders []id.UserID, filter models.ListFilter) ([]*models.Document, error) {
	var (
		conds []string
		args  []any
	)
	if uploaders != nil {
		args = append(args, pq.Array(id.UserIDStrings(uploaders)))
		conds = append(conds, fmt.Sprintf("uploaded_by = ANY($%d::uuid[])", len(args)))
	}
	if !filter.Parcel.IsNil() {
		args = append(args, uuid.UUID(filter.Parcel))
		conds = append(conds, fmt.Sprintf("parcel_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("document_type = $%d", len(args)))
	}
	query := selectDocuments
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY uploaded_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update writes title, type and metadata while the document is unverified.
func (s *PostgresStore) Update(ctx context.Context, doc *models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title = $2, document_type = $3, metadata = $4, updated_at = $5
		WHERE id = $1 AND NOT is_verified
	`, uuid.UUID(doc.ID), doc.Title, string(doc.DocumentType), string(meta), doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return s.explainMiss(ctx, res, doc.ID)
}

// Verify marks an unverified document as verified by verifier.
func (s *PostgresStore) Verify(ctx context.Context, docID id.DocumentID, verifier id.UserID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET is_verified = TRUE, verified_by = $2, verified_at = $3, updated_at = $3
		WHERE id = $1 AND NOT is_verified
	`, uuid.UUID(docID), uuid.UUID(verifier), now)
	if err != nil {
		return fmt.Errorf("verify document: %w", err)
	}
	return s.explainMiss(ctx, res, docID)
}

// explainMiss turns a zero-row conditional update into ErrNotFound when the
// document is gone, else into ErrInvalidState.
func (s *PostgresStore) explainMiss(ctx context.Context, res sql.Result, docID id.DocumentID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, docID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc        models.Document
		docID      uuid.UUID
		parcelID   uuid.UUID
		uploader   uuid.UUID
		docType    string
		verifiedBy uuid.NullUUID
		verifiedAt sql.NullTime
		meta       []byte
	)
	err := row.Scan(
		&docID,
		&doc.Title,
		&docType,
		&parcelID,
		&uploader,
		&doc.IPFSHash,
		&doc.BlockchainReference,
		&doc.IsVerified,
		&verifiedBy,
		&verifiedAt,
		&meta,
		&doc.UploadedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.Parcel = id.ParcelID(parcelID)
	doc.UploadedBy = id.UserID(uploader)
	doc.DocumentType = models.DocumentType(docType)
	if verifiedBy.Valid {
		by := id.UserID(verifiedBy.UUID)
		doc.VerifiedBy = &by
	}
	if verifiedAt.Valid {
		at := verifiedAt.Time
		doc.VerifiedAt = &at
	}
	if err := decodeMetadata(meta, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeMetadata(raw []byte, doc *models.Document) error {
	doc.Metadata = map[string]any{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &doc.Metadata); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return nil
}
