package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landregistry/internal/ledger/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
)

// ApprovalStore is the view of transactions and parcel ownership an
// approval reads and writes.
type ApprovalStore interface {
	FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
	Complete(ctx context.Context, txID id.TransactionID, now time.Time) error
	CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error)
	TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error
}

// ApprovalTx runs fn as one unit of work: either every write fn makes
// through store commits, or none does. Implementations may wrap a database
// transaction or, in memory, a lock with staged writes.
type ApprovalTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store ApprovalStore) error) error
}

// defaultApprovalTxTimeout bounds a unit of work when the caller set no deadline.
const defaultApprovalTxTimeout = 5 * time.Second

// lockedApprovalTx serializes approvals behind one mutex and stages their
// writes, applying them to the backing store only when fn succeeds.
type lockedApprovalTx struct {
	mu      sync.Mutex
	store   ApprovalStore
	timeout time.Duration
}

// NewLockedApprovalTx returns the in-memory unit of work over store.
func NewLockedApprovalTx(store ApprovalStore) ApprovalTx {
	return &lockedApprovalTx{store: store}
}

func (t *lockedApprovalTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ApprovalStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultApprovalTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := newStagedApprovals(t.store)
	if err := fn(ctx, staged); err != nil {
		return err
	}
	return staged.commit(ctx)
}

type stagedTransfer struct {
	parcel   id.ParcelID
	from, to id.UserID
	at       time.Time
}

// stagedApprovals records writes and answers reads through them until commit.
type stagedApprovals struct {
	base      ApprovalStore
	completed map[id.TransactionID]time.Time
	order     []id.TransactionID
	transfers []stagedTransfer
}

func newStagedApprovals(base ApprovalStore) *stagedApprovals {
	return &stagedApprovals{base: base, completed: make(map[id.TransactionID]time.Time)}
}

func (s *stagedApprovals) FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error) {
	tx, err := s.base.FindByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if at, ok := s.completed[txID]; ok {
		tx.Status = models.StatusCompleted
		tx.UpdatedAt = at
		tx.CompletedAt = &at
	}
	return tx, nil
}

func (s *stagedApprovals) Complete(ctx context.Context, txID id.TransactionID, now time.Time) error {
	tx, err := s.FindByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	s.completed[txID] = now
	s.order = append(s.order, txID)
	return nil
}

func (s *stagedApprovals) CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error) {
	for i := len(s.transfers) - 1; i >= 0; i-- {
		if s.transfers[i].parcel == parcelID {
			return s.transfers[i].to, nil
		}
	}
	return s.base.CurrentOwner(ctx, parcelID)
}

func (s *stagedApprovals) TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error {
	owner, err := s.CurrentOwner(ctx, parcelID)
	if err != nil {
		return err
	}
	if owner != from {
		return sentinel.ErrConflict
	}
	s.transfers = append(s.transfers, stagedTransfer{parcel: parcelID, from: from, to: to, at: now})
	return nil
}

// approvalApplier is implemented by stores that can apply one completion and
// its ownership transfer as a single visible change.
type approvalApplier interface {
	ApplyApproval(ctx context.Context, txID id.TransactionID, now time.Time, parcelID id.ParcelID, from, to id.UserID) error
}

// commit applies the staged writes. Every approval holds the lock, so the
// preconditions checked while staging still hold here.
func (s *stagedApprovals) commit(ctx context.Context) error {
	if applier, ok := s.base.(approvalApplier); ok && len(s.order) == 1 && len(s.transfers) == 1 {
		t := s.transfers[0]
		if err := applier.ApplyApproval(ctx, s.order[0], s.completed[s.order[0]], t.parcel, t.from, t.to); err != nil {
			return dErrors.Wrap(fmt.Errorf("apply approval: %w", err), dErrors.CodeInternal, "failed to commit approval")
		}
		return nil
	}
	for _, txID := range s.order {
		if err := s.base.Complete(ctx, txID, s.completed[txID]); err != nil {
			return dErrors.Wrap(fmt.Errorf("apply completion: %w", err), dErrors.CodeInternal, "failed to commit approval")
		}
	}
	for _, t := range s.transfers {
		if err := s.base.TransferOwnership(ctx, t.parcel, t.from, t.to, t.at); err != nil {
			return dErrors.Wrap(fmt.Errorf("apply transfer: %w", err), dErrors.CodeInternal, "failed to commit approval")
		}
	}
	return nil
}
