package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landregistry/internal/identity/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectUsers = `
	SELECT id, username, email, first_name, last_name, phone_number, national_id,
		user_type, is_verified, blockchain_address, password_hash, created_at, updated_at
	FROM users
`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			id, username, email, first_name, last_name, phone_number, national_id,
			user_type, is_verified, blockchain_address, password_hash, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.NationalID,
		string(user.Role),
		user.IsVerified,
		user.BlockchainAddress,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, selectUsers+` WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, selectUsers+` WHERE username = $1`, username)
	return scanUser(row)
}

// List returns users ordered by username. A nil ids slice lists everyone.
func (s *PostgresStore) List(ctx context.Context, ids []id.UserID) ([]*models.User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ids == nil {
		rows, err = s.db.QueryContext(ctx, selectUsers+` ORDER BY username`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectUsers+` WHERE id = ANY($1::uuid[]) ORDER BY username`,
			pq.Array(id.UserIDStrings(ids)))
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, phone_number = $5,
			blockchain_address = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Email,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.BlockchainAddress,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireOneRow(res, sentinel.ErrNotFound)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, userID id.UserID, hash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(userID), hash, now)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireOneRow(res, sentinel.ErrNotFound)
}

// MarkVerified sets is_verified only if it is still false.
func (s *PostgresStore) MarkVerified(ctx context.Context, userID id.UserID, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1 AND is_verified = FALSE`,
		uuid.UUID(userID), now)
	if err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	if err := requireOneRow(res, sentinel.ErrInvalidState); err != nil {
		if _, findErr := s.FindByID(ctx, userID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PostgresStore) CountByRole(ctx context.Context, role id.Role) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE user_type = $1`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user   models.User
		userID uuid.UUID
		role   string
	)
	err := row.Scan(
		&userID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.NationalID,
		&role,
		&user.IsVerified,
		&user.BlockchainAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(userID)
	user.Role = id.Role(role)
	return &user, nil
}

func requireOneRow(res sql.Result, zero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return zero
	}
	return nil
}
