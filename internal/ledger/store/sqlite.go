package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"landregistry/internal/ledger/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type transactionRow struct {
	ID              string     `gorm:"primaryKey;size:36"`
	ParcelID        string     `gorm:"size:36;not null;index"`
	FromOwnerID     string     `gorm:"size:36;not null;index"`
	ToOwnerID       string     `gorm:"size:36;not null;index"`
	Price           string     `gorm:"not null"`
	Status          string     `gorm:"size:20;not null;index"`
	TransactionHash string     `gorm:"size:66;not null;default:''"`
	Documents       string     `gorm:"not null;default:'[]'"`
	CreatedAt       time.Time  `gorm:"not null;index"`
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func (transactionRow) TableName() string { return "land_transactions" }

// ownershipRow addresses the columns of land_parcels an approval touches.
type ownershipRow struct {
	ID             string `gorm:"primaryKey"`
	CurrentOwnerID string
	UpdatedAt      time.Time
}

func (ownershipRow) TableName() string { return "land_parcels" }

// SQLiteStore persists transactions in an embedded SQLite database through
// gorm. Bound to a gorm transaction it also serves as the approval unit of
// work.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLite migrates the land_transactions table and returns the store.
// land_parcels is owned by the parcel store and must already exist.
func NewSQLite(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&transactionRow{}); err != nil {
		return nil, fmt.Errorf("migrate land_transactions: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// WithTx binds a store to an open gorm transaction.
func WithTx(tx *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: tx}
}

func (s *SQLiteStore) Create(ctx context.Context, tx *models.Transaction) error {
	row, err := toTransactionRow(tx)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create transaction: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("id = ?", txID.String()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return row.toModel()
}

// List returns transactions where one of parties is the seller or the buyer,
// newest first. A nil parties slice lists everything.
func (s *SQLiteStore) List(ctx context.Context, parties []id.UserID, filter models.ListFilter) ([]*models.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&transactionRow{})
	if parties != nil {
		if len(parties) == 0 {
			return []*models.Transaction{}, nil
		}
		ids := id.UserIDStrings(parties)
		q = q.Where("from_owner_id IN ? OR to_owner_id IN ?", ids, ids)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.Parcel.IsNil() {
		q = q.Where("parcel_id = ?", filter.Parcel.String())
	}
	var rows []transactionRow
	if err := q.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs := make([]*models.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	sortNewestFirst(txs)
	return txs, nil
}

// Update writes price and documents while the transaction is still PENDING.
func (s *SQLiteStore) Update(ctx context.Context, tx *models.Transaction) error {
	docs, err := json.Marshal(tx.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&transactionRow{}).
		Where("id = ? AND status = ?", tx.ID.String(), string(models.StatusPending)).
		Updates(map[string]any{
			"price":      tx.Price.String(),
			"documents":  string(docs),
			"updated_at": tx.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update transaction: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, tx.ID)
}

// Complete moves a PENDING transaction to COMPLETED.
func (s *SQLiteStore) Complete(ctx context.Context, txID id.TransactionID, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&transactionRow{}).
		Where("id = ? AND status = ?", txID.String(), string(models.StatusPending)).
		Updates(map[string]any{
			"status":       string(models.StatusCompleted),
			"updated_at":   now,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete transaction: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, txID)
}

func (s *SQLiteStore) CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error) {
	var row ownershipRow
	if err := s.db.WithContext(ctx).Where("id = ?", parcelID.String()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return id.UserID{}, sentinel.ErrNotFound
		}
		return id.UserID{}, fmt.Errorf("read parcel owner: %w", err)
	}
	owner, err := id.ParseUserID(row.CurrentOwnerID)
	if err != nil {
		return id.UserID{}, fmt.Errorf("stored owner id %q: %w", row.CurrentOwnerID, err)
	}
	return owner, nil
}

// TransferOwnership sets the parcel owner to to only while it is still from.
func (s *SQLiteStore) TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&ownershipRow{}).
		Where("id = ? AND current_owner_id = ?", parcelID.String(), from.String()).
		Updates(map[string]any{"current_owner_id": to.String(), "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("transfer ownership: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.CurrentOwner(ctx, parcelID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (s *SQLiteStore) explainMiss(ctx context.Context, affected int64, txID id.TransactionID) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, txID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func toTransactionRow(tx *models.Transaction) (transactionRow, error) {
	docs, err := json.Marshal(tx.Documents)
	if err != nil {
		return transactionRow{}, fmt.Errorf("encode documents: %w", err)
	}
	return transactionRow{
		ID:              tx.ID.String(),
		ParcelID:        tx.Parcel.String(),
		FromOwnerID:     tx.FromOwner.String(),
		ToOwnerID:       tx.ToOwner.String(),
		Price:           tx.Price.String(),
		Status:          string(tx.Status),
		TransactionHash: tx.TransactionHash,
		Documents:       string(docs),
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
		CompletedAt:     tx.CompletedAt,
	}, nil
}

func (r *transactionRow) toModel() (*models.Transaction, error) {
	txID, err := id.ParseTransactionID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("stored transaction id %q: %w", r.ID, err)
	}
	parcelID, err := id.ParseParcelID(r.ParcelID)
	if err != nil {
		return nil, fmt.Errorf("stored parcel id %q: %w", r.ParcelID, err)
	}
	fromID, err := id.ParseUserID(r.FromOwnerID)
	if err != nil {
		return nil, fmt.Errorf("stored from_owner %q: %w", r.FromOwnerID, err)
	}
	toID, err := id.ParseUserID(r.ToOwnerID)
	if err != nil {
		return nil, fmt.Errorf("stored to_owner %q: %w", r.ToOwnerID, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("stored price %q: %w", r.Price, err)
	}
	docs := []string{}
	if err := json.Unmarshal([]byte(r.Documents), &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return &models.Transaction{
		ID:              txID,
		Parcel:          parcelID,
		FromOwner:       fromID,
		ToOwner:         toID,
		Price:           price,
		Status:          models.Status(r.Status),
		TransactionHash: r.TransactionHash,
		Documents:       docs,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CompletedAt:     r.CompletedAt,
	}, nil
}
