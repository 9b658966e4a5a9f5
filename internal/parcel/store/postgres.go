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

	"landregistry/internal/parcel/models"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// PostgresStore persists parcels in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectParcels = `
	SELECT id, parcel_number, address, area, coordinates, current_owner_id,
		status, blockchain_hash, registered_at, updated_at
	FROM land_parcels
`

func (s *PostgresStore) Create(ctx context.Context, parcel *models.Parcel) error {
	coords, err := json.Marshal(parcel.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	query := `
		INSERT INTO land_parcels (
			id, parcel_number, address, area, coordinates, current_owner_id,
			status, blockchain_hash, registered_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(parcel.ID),
		parcel.ParcelNumber,
		parcel.Address,
		parcel.Area,
		string(coords),
		uuid.UUID(parcel.CurrentOwner),
		string(parcel.Status),
		parcel.BlockchainHash,
		parcel.RegisteredAt,
		parcel.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create parcel: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create parcel: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	row := s.db.QueryRowContext(ctx, selectParcels+` WHERE id = $1`, uuid.UUID(parcelID))
	return scanParcel(row)
}

// List returns parcels owned by one of owners, newest first. A nil owners
// slice lists every parcel.
func (s *PostgresStore) List(ctx context.Context, owners []id.UserID, filter models.ListFilter) ([]*models.Parcel, error) {
	var (
		conds []string
		args  []any
	)
	if owners != nil {
		args = append(args, pq.Array(id.UserIDStrings(owners)))
		conds = append(conds, fmt.Sprintf("current_owner_id = ANY($%d::uuid[])", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := selectParcels
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY registered_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	defer rows.Close()

	parcels := make([]*models.Parcel, 0)
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	return parcels, nil
}

// Update writes the descriptive fields. When onlyIf is set the write applies
// only while the stored status equals it.
func (s *PostgresStore) Update(ctx context.Context, parcel *models.Parcel, onlyIf models.Status) error {
	coords, err := json.Marshal(parcel.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	query := `
		UPDATE land_parcels
		SET address = $2, area = $3, coordinates = $4, updated_at = $5
		WHERE id = $1 AND ($6 = '' OR status = $6)
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(parcel.ID), parcel.Address, parcel.Area, string(coords), parcel.UpdatedAt, string(onlyIf))
	if err != nil {
		return fmt.Errorf("update parcel: %w", err)
	}
	return s.explainMiss(ctx, res, parcel.ID, sentinel.ErrInvalidState)
}

// Transition moves a parcel from one status to another.
func (s *PostgresStore) Transition(ctx context.Context, parcelID id.ParcelID, from, to models.Status, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE land_parcels SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		uuid.UUID(parcelID), string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("transition parcel: %w", err)
	}
	return s.explainMiss(ctx, res, parcelID, sentinel.ErrInvalidState)
}

// explainMiss turns a zero-row conditional update into ErrNotFound when the
// parcel is gone, else into miss.
func (s *PostgresStore) explainMiss(ctx context.Context, res sql.Result, parcelID id.ParcelID, miss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, parcelID); err != nil {
		return err
	}
	return miss
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (*models.Parcel, error) {
	var (
		p        models.Parcel
		parcelID uuid.UUID
		ownerID  uuid.UUID
		status   string
		coords   []byte
	)
	err := row.Scan(
		&parcelID,
		&p.ParcelNumber,
		&p.Address,
		&p.Area,
		&coords,
		&ownerID,
		&status,
		&p.BlockchainHash,
		&p.RegisteredAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan parcel: %w", err)
	}
	if err := decodeCoordinates(coords, &p); err != nil {
		return nil, err
	}
	p.ID = id.ParcelID(parcelID)
	p.CurrentOwner = id.UserID(ownerID)
	p.Status = models.Status(status)
	return &p, nil
}

func decodeCoordinates(raw []byte, p *models.Parcel) error {
	p.Coordinates = map[string]any{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &p.Coordinates); err != nil {
		return fmt.Errorf("decode coordinates: %w", err)
	}
	return nil
}
