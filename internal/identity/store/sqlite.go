package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"landregistry/internal/identity/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type userRow struct {
	ID                string `gorm:"primaryKey;size:36"`
	Username          string `gorm:"size:150;not null;uniqueIndex"`
	Email             string `gorm:"not null;default:''"`
	FirstName         string `gorm:"not null;default:''"`
	LastName          string `gorm:"not null;default:''"`
	PhoneNumber       string `gorm:"size:15;not null;default:''"`
	NationalID        string `gorm:"size:20;not null;uniqueIndex"`
	UserType          string `gorm:"size:20;not null"`
	IsVerified        bool   `gorm:"not null;default:false"`
	BlockchainAddress string `gorm:"size:42;not null;default:''"`
	PasswordHash      string `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (userRow) TableName() string { return "users" }

// SQLiteStore persists users in an embedded SQLite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLite migrates the users table and returns the store.
func NewSQLite(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, user *models.User) error {
	row := toUserRow(user)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.first(ctx, "id = ?", userID.String())
}

func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

// List returns users ordered by username. A nil ids slice lists everyone.
func (s *SQLiteStore) List(ctx context.Context, ids []id.UserID) ([]*models.User, error) {
	q := s.db.WithContext(ctx).Order("username")
	if ids != nil {
		if len(ids) == 0 {
			return []*models.User{}, nil
		}
		q = q.Where("id IN ?", id.UserIDStrings(ids))
	}
	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		user, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *SQLiteStore) Update(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ?", user.ID.String()).
		Updates(map[string]any{
			"email":              user.Email,
			"first_name":         user.FirstName,
			"last_name":          user.LastName,
			"phone_number":       user.PhoneNumber,
			"blockchain_address": user.BlockchainAddress,
			"updated_at":         user.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdatePassword(ctx context.Context, userID id.UserID, hash string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ?", userID.String()).
		Updates(map[string]any{"password_hash": hash, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// MarkVerified sets is_verified only if it is still false.
func (s *SQLiteStore) MarkVerified(ctx context.Context, userID id.UserID, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ? AND is_verified = ?", userID.String(), false).
		Updates(map[string]any{"is_verified": true, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("verify user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindByID(ctx, userID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *SQLiteStore) CountByRole(ctx context.Context, role id.Role) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Where("user_type = ?", string(role)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) first(ctx context.Context, cond string, arg any) (*models.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return row.toModel()
}

func toUserRow(u *models.User) userRow {
	return userRow{
		ID:                u.ID.String(),
		Username:          u.Username,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		PhoneNumber:       u.PhoneNumber,
		NationalID:        u.NationalID,
		UserType:          string(u.Role),
		IsVerified:        u.IsVerified,
		BlockchainAddress: u.BlockchainAddress,
		PasswordHash:      u.PasswordHash,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (r *userRow) toModel() (*models.User, error) {
	userID, err := id.ParseUserID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", r.ID, err)
	}
	return &models.User{
		ID:                userID,
		Username:          r.Username,
		Email:             r.Email,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		PhoneNumber:       r.PhoneNumber,
		NationalID:        r.NationalID,
		Role:              id.Role(r.UserType),
		IsVerified:        r.IsVerified,
		BlockchainAddress: r.BlockchainAddress,
		PasswordHash:      r.PasswordHash,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}
