package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landregistry/internal/ledger/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists transactions in PostgreSQL. Bound to a *sql.Tx it
// also serves as the approval unit of work.
type PostgresStore struct {
	db querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx}
}

const selectTransactions = `
	SELECT id, parcel_id, from_owner_id, to_owner_id, price, status,
		transaction_hash, documents, created_at, updated_at, completed_at
	FROM land_transactions
`

func (s *PostgresStore) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO land_transactions (
			id, parcel_id, from_owner_id, to_owner_id, price, status,
			transaction_hash, documents, created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(tx.ID),
		uuid.UUID(tx.Parcel),
		uuid.UUID(tx.FromOwner),
		uuid.UUID(tx.ToOwner),
		tx.Price,
		string(tx.Status),
		tx.TransactionHash,
		pq.Array(tx.Documents),
		tx.CreatedAt,
		tx.UpdatedAt,
		tx.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create transaction: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectTransactions+` WHERE id = $1`, uuid.UUID(txID))
	return scanTransaction(row)
}

// List returns transactions where one of parties is the seller or the buyer,
// newest first. A nil parties slice lists everything.
func (s *PostgresStore) List(ctx context.Context, parties []id.UserID, filter models.ListFilter) ([]*models.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if parties != nil {
		args = append(args, pq.Array(id.UserIDStrings(parties)))
		n := len(args)
		conds = append(conds, fmt.Sprintf("(from_owner_id = ANY($%d::uuid[]) OR to_owner_id = ANY($%d::uuid[]))", n, n))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Parcel.IsNil() {
		args = append(args, uuid.UUID(filter.Parcel))
		conds = append(conds, fmt.Sprintf("parcel_id = $%d", len(args)))
	}
	query := selectTransactions
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*models.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Update writes price and documents while the transaction is still PENDING.
func (s *PostgresStore) Update(ctx context.Context, tx *models.Transaction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE land_transactions
		SET price = $2, documents = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, uuid.UUID(tx.ID), tx.Price, pq.Array(tx.Documents), tx.UpdatedAt, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return s.explainMiss(ctx, res, tx.ID)
}

// Complete moves a PENDING transaction to COMPLETED. Within a transaction
// the row lock makes a concurrent second Complete see COMPLETED and fail.
func (s *PostgresStore) Complete(ctx context.Context, txID id.TransactionID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE land_transactions
		SET status = $2, updated_at = $3, completed_at = $3
		WHERE id = $1 AND status = $4
	`, uuid.UUID(txID), string(models.StatusCompleted), now, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	return s.explainMiss(ctx, res, txID)
}

func (s *PostgresStore) CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error) {
	var owner uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT current_owner_id FROM land_parcels WHERE id = $1`, uuid.UUID(parcelID)).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return id.UserID{}, sentinel.ErrNotFound
		}
		return id.UserID{}, fmt.Errorf("read parcel owner: %w", err)
	}
	return id.UserID(owner), nil
}

// TransferOwnership sets the parcel owner to to only while it is still from.
func (s *PostgresStore) TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE land_parcels
		SET current_owner_id = $3, updated_at = $4
		WHERE id = $1 AND current_owner_id = $2
	`, uuid.UUID(parcelID), uuid.UUID(from), uuid.UUID(to), now)
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.CurrentOwner(ctx, parcelID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

// explainMiss turns a zero-row conditional update into ErrNotFound when the
// transaction is gone, else into ErrInvalidState.
func (s *PostgresStore) explainMiss(ctx context.Context, res sql.Result, txID id.TransactionID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, txID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx        models.Transaction
		txID      uuid.UUID
		parcelID  uuid.UUID
		fromID    uuid.UUID
		toID      uuid.UUID
		status    string
		documents pq.StringArray
		completed sql.NullTime
	)
	err := row.Scan(
		&txID,
		&parcelID,
		&fromID,
		&toID,
		&tx.Price,
		&status,
		&tx.TransactionHash,
		&documents,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&completed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	tx.ID = id.TransactionID(txID)
	tx.Parcel = id.ParcelID(parcelID)
	tx.FromOwner = id.UserID(fromID)
	tx.ToOwner = id.UserID(toID)
	tx.Status = models.Status(status)
	tx.Documents = []string(documents)
	if tx.Documents == nil {
		tx.Documents = []string{}
	}
	if completed.Valid {
		at := completed.Time
		tx.CompletedAt = &at
	}
	return &tx, nil
}
