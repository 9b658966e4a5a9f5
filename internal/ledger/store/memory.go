package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landregistry/internal/ledger/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// Ownership is the parcel side of an approval.
type Ownership interface {
	CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error)
	TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error
}

// InMemoryTransactionStore keeps transactions in a map guarded by a RWMutex.
type InMemoryTransactionStore struct {
	mu           sync.RWMutex
	transactions map[id.TransactionID]*models.Transaction
	ownership    Ownership
}

// New returns an empty store. ownership backs CurrentOwner and
// TransferOwnership; it is normally the in-memory parcel store.
func New(ownership Ownership) *InMemoryTransactionStore {
	return &InMemoryTransactionStore{
		transactions: make(map[id.TransactionID]*models.Transaction),
		ownership:    ownership,
	}
}

func (s *InMemoryTransactionStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.transactions[tx.ID]; taken {
		return fmt.Errorf("transaction id: %w", sentinel.ErrAlreadyUsed)
	}
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (s *InMemoryTransactionStore) FindByID(_ context.Context, txID id.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return tx.Clone(), nil
}

// List returns transactions where one of parties is the seller or the buyer,
// newest first. A nil parties slice lists everything.
func (s *InMemoryTransactionStore) List(_ context.Context, parties []id.UserID, filter models.ListFilter) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Transaction, 0)
	for _, tx := range s.transactions {
		if !involves(parties, tx) || !filter.Matches(tx) {
			continue
		}
		result = append(result, tx.Clone())
	}
	sortNewestFirst(result)
	return result, nil
}

// Update writes price and documents while the transaction is still PENDING.
func (s *InMemoryTransactionStore) Update(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[tx.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.Price = tx.Price
	next.Documents = tx.Clone().Documents
	next.UpdatedAt = tx.UpdatedAt
	s.transactions[tx.ID] = next
	return nil
}

// Complete moves a PENDING transaction to COMPLETED.
func (s *InMemoryTransactionStore) Complete(_ context.Context, txID id.TransactionID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[txID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	next := stored.Clone()
	next.Status = models.StatusCompleted
	next.UpdatedAt = now
	next.CompletedAt = &now
	s.transactions[txID] = next
	return nil
}

// ApplyApproval transfers the parcel and completes txID while holding the
// transaction lock. The owner changes first, so a reader that sees COMPLETED
// also sees the new owner.
func (s *InMemoryTransactionStore) ApplyApproval(ctx context.Context, txID id.TransactionID, now time.Time, parcelID id.ParcelID, from, to id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[txID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	if err := s.ownership.TransferOwnership(ctx, parcelID, from, to, now); err != nil {
		return err
	}
	next := stored.Clone()
	next.Status = models.StatusCompleted
	next.UpdatedAt = now
	next.CompletedAt = &now
	s.transactions[txID] = next
	return nil
}

func (s *InMemoryTransactionStore) CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error) {
	return s.ownership.CurrentOwner(ctx, parcelID)
}

func (s *InMemoryTransactionStore) TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error {
	return s.ownership.TransferOwnership(ctx, parcelID, from, to, now)
}
