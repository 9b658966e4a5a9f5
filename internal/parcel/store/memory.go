package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landregistry/internal/parcel/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// InMemoryParcelStore keeps parcels in maps guarded by a RWMutex. It also
// serves as the ownership side of the in-memory approval transaction.
type InMemoryParcelStore struct {
	mu       sync.RWMutex
	parcels  map[id.ParcelID]*models.Parcel
	byNumber map[string]id.ParcelID
}

func New() *InMemoryParcelStore {
	return &InMemoryParcelStore{
		parcels:  make(map[id.ParcelID]*models.Parcel),
		byNumber: make(map[string]id.ParcelID),
	}
}

func (s *InMemoryParcelStore) Create(_ context.Context, parcel *models.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byNumber[parcel.ParcelNumber]; taken {
		return fmt.Errorf("parcel_id %q: %w", parcel.ParcelNumber, sentinel.ErrAlreadyUsed)
	}
	if _, taken := s.parcels[parcel.ID]; taken {
		return fmt.Errorf("parcel id: %w", sentinel.ErrAlreadyUsed)
	}
	s.parcels[parcel.ID] = parcel.Clone()
	s.byNumber[parcel.ParcelNumber] = parcel.ID
	return nil
}

func (s *InMemoryParcelStore) FindByID(_ context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parcels[parcelID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns parcels owned by one of owners, newest first. A nil owners
// slice lists every parcel; an empty one lists none.
func (s *InMemoryParcelStore) List(_ context.Context, owners []id.UserID, filter models.ListFilter) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Parcel, 0)
	for _, p := range s.parcels {
		if !ownedBy(owners, p.CurrentOwner) || !filter.Matches(p) {
			continue
		}
		result = append(result, p.Clone())
	}
	sortNewestFirst(result)
	return result, nil
}

// Update writes the descriptive fields. When onlyIf is set the write applies
// only while the stored status equals it.
func (s *InMemoryParcelStore) Update(_ context.Context, parcel *models.Parcel, onlyIf models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.parcels[parcel.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if onlyIf != "" && stored.Status != onlyIf {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.Address = parcel.Address
	next.Area = parcel.Area
	next.Coordinates = parcel.Clone().Coordinates
	next.UpdatedAt = parcel.UpdatedAt
	s.parcels[parcel.ID] = next
	return nil
}

// Transition moves a parcel from one status to another, failing with
// ErrInvalidState when the stored status is not from.
func (s *InMemoryParcelStore) Transition(_ context.Context, parcelID id.ParcelID, from, to models.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.parcels[parcelID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != from {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.Status = to
	next.UpdatedAt = now
	s.parcels[parcelID] = next
	return nil
}

// CurrentOwner returns the owner of a parcel.
func (s *InMemoryParcelStore) CurrentOwner(_ context.Context, parcelID id.ParcelID) (id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.parcels[parcelID]
	if !ok {
		return id.UserID{}, sentinel.ErrNotFound
	}
	return stored.CurrentOwner, nil
}

// TransferOwnership sets the owner to to only while it is still from.
// A mismatch yields ErrConflict.
func (s *InMemoryParcelStore) TransferOwnership(_ context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.parcels[parcelID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.CurrentOwner != from {
		return sentinel.ErrConflict
	}
	next := stored.Clone()
	next.CurrentOwner = to
	next.UpdatedAt = now
	s.parcels[parcelID] = next
	return nil
}
