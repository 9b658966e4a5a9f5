package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"landregistry/internal/parcel/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type parcelRow struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ParcelNumber   string    `gorm:"size:50;not null;uniqueIndex"`
	Address        string    `gorm:"not null"`
	Area           string    `gorm:"not null"`
	Coordinates    string    `gorm:"not null;default:'{}'"`
	CurrentOwnerID string    `gorm:"size:36;not null;index"`
	Status         string    `gorm:"size:20;not null;index"`
	BlockchainHash string    `gorm:"size:66;not null;default:''"`
	RegisteredAt   time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time
}

func (parcelRow) TableName() string { return "land_parcels" }

// SQLiteStore persists parcels in an embedded SQLite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLite migrates the land_parcels table and returns the store.
func NewSQLite(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&parcelRow{}); err != nil {
		return nil, fmt.Errorf("migrate land_parcels: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, parcel *models.Parcel) error {
	row, err := toParcelRow(parcel)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create parcel: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create parcel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	var row parcelRow
	if err := s.db.WithContext(ctx).Where("id = ?", parcelID.String()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find parcel: %w", err)
	}
	return row.toModel()
}

// List returns parcels owned by one of owners, newest first. A nil owners
// slice lists every parcel.
func (s *SQLiteStore) List(ctx context.Context, owners []id.UserID, filter models.ListFilter) ([]*models.Parcel, error) {
	q := s.db.WithContext(ctx).Model(&parcelRow{})
	if owners != nil {
		if len(owners) == 0 {
			return []*models.Parcel{}, nil
		}
		q = q.Where("current_owner_id IN ?", id.UserIDStrings(owners))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var rows []parcelRow
	if err := q.Order("registered_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	parcels := make([]*models.Parcel, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	// Stored timestamps may carry different zone offsets; order on parsed values.
	sortNewestFirst(parcels)
	return parcels, nil
}

// Update writes the descriptive fields. When onlyIf is set the write applies
// only while the stored status equals it.
func (s *SQLiteStore) Update(ctx context.Context, parcel *models.Parcel, onlyIf models.Status) error {
	coords, err := json.Marshal(parcel.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	q := s.db.WithContext(ctx).Model(&parcelRow{}).Where("id = ?", parcel.ID.String())
	if onlyIf != "" {
		q = q.Where("status = ?", string(onlyIf))
	}
	res := q.Updates(map[string]any{
		"address":     parcel.Address,
		"area":        parcel.Area.String(),
		"coordinates": string(coords),
		"updated_at":  parcel.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update parcel: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, parcel.ID)
}

// Transition moves a parcel from one status to another.
func (s *SQLiteStore) Transition(ctx context.Context, parcelID id.ParcelID, from, to models.Status, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&parcelRow{}).
		Where("id = ? AND status = ?", parcelID.String(), string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("transition parcel: %w", res.Error)
	}
	return s.explainMiss(ctx, res.RowsAffected, parcelID)
}

func (s *SQLiteStore) explainMiss(ctx context.Context, affected int64, parcelID id.ParcelID) error {
	if affected > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, parcelID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func toParcelRow(p *models.Parcel) (parcelRow, error) {
	coords, err := json.Marshal(p.Coordinates)
	if err != nil {
		return parcelRow{}, fmt.Errorf("encode coordinates: %w", err)
	}
	return parcelRow{
		ID:             p.ID.String(),
		ParcelNumber:   p.ParcelNumber,
		Address:        p.Address,
		Area:           p.Area.String(),
		Coordinates:    string(coords),
		CurrentOwnerID: p.CurrentOwner.String(),
		Status:         string(p.Status),
		BlockchainHash: p.BlockchainHash,
		RegisteredAt:   p.RegisteredAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

func (r *parcelRow) toModel() (*models.Parcel, error) {
	parcelID, err := id.ParseParcelID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("stored parcel id %q: %w", r.ID, err)
	}
	ownerID, err := id.ParseUserID(r.CurrentOwnerID)
	if err != nil {
		return nil, fmt.Errorf("stored owner id %q: %w", r.CurrentOwnerID, err)
	}
	area, err := decimal.NewFromString(r.Area)
	if err != nil {
		return nil, fmt.Errorf("stored area %q: %w", r.Area, err)
	}
	p := &models.Parcel{
		ID:             parcelID,
		ParcelNumber:   r.ParcelNumber,
		Address:        r.Address,
		Area:           area,
		CurrentOwner:   ownerID,
		Status:         models.Status(r.Status),
		BlockchainHash: r.BlockchainHash,
		RegisteredAt:   r.RegisteredAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if err := decodeCoordinates([]byte(r.Coordinates), p); err != nil {
		return nil, err
	}
	return p, nil
}
