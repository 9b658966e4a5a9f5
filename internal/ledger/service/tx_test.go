package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/ledger/models"
	"landregistry/internal/ledger/store"
	parcelmodels "landregistry/internal/parcel/models"
	parcelstore "landregistry/internal/parcel/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
)

type lockedFixture struct {
	parcels *parcelstore.InMemoryParcelStore
	txs     *store.InMemoryTransactionStore
	parcel  *parcelmodels.Parcel
	tx      *models.Transaction
	seller  id.UserID
	buyer   id.UserID
	now     time.Time
}

func newLockedFixture(t *testing.T) *lockedFixture {
	t.Helper()
	ctx := context.Background()
	f := &lockedFixture{
		parcels: parcelstore.New(),
		seller:  id.NewUserID(),
		buyer:   id.NewUserID(),
		now:     time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	f.txs = store.New(f.parcels)

	var err error
	f.parcel, err = parcelmodels.NewParcel(id.NewParcelID(), "LR-TX", "addr", decimal.NewFromInt(1), nil, f.seller, f.now)
	require.NoError(t, err)
	require.NoError(t, f.parcels.Create(ctx, f.parcel))
	f.tx, err = models.NewTransaction(id.NewTransactionID(), f.parcel.ID, f.seller, f.buyer, decimal.NewFromInt(1), nil, f.now)
	require.NoError(t, err)
	require.NoError(t, f.txs.Create(ctx, f.tx))
	return f
}

func TestLockedApprovalTx_CommitsOnSuccess(t *testing.T) {
	f := newLockedFixture(t)
	ctx := context.Background()

	err := NewLockedApprovalTx(f.txs).RunInTx(ctx, func(ctx context.Context, st ApprovalStore) error {
		if err := st.Complete(ctx, f.tx.ID, f.now); err != nil {
			return err
		}
		staged, err := st.FindByID(ctx, f.tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, staged.Status, "reads see staged writes")

		stored, err := f.txs.FindByID(ctx, f.tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status, "nothing is applied before commit")

		return st.TransferOwnership(ctx, f.parcel.ID, f.seller, f.buyer, f.now)
	})
	require.NoError(t, err)

	stored, err := f.txs.FindByID(ctx, f.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	owner, err := f.parcels.CurrentOwner(ctx, f.parcel.ID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer, owner)
}

func TestLockedApprovalTx_DiscardsOnFailure(t *testing.T) {
	f := newLockedFixture(t)
	ctx := context.Background()

	err := NewLockedApprovalTx(f.txs).RunInTx(ctx, func(ctx context.Context, st ApprovalStore) error {
		if err := st.Complete(ctx, f.tx.ID, f.now); err != nil {
			return err
		}
		return st.TransferOwnership(ctx, f.parcel.ID, f.buyer, f.seller, f.now)
	})
	require.True(t, errors.Is(err, sentinel.ErrConflict), "got %v", err)

	stored, err := f.txs.FindByID(ctx, f.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	owner, err := f.parcels.CurrentOwner(ctx, f.parcel.ID)
	require.NoError(t, err)
	assert.Equal(t, f.seller, owner)
}

func TestLockedApprovalTx_CancelledContext(t *testing.T) {
	f := newLockedFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewLockedApprovalTx(f.txs).RunInTx(ctx, func(context.Context, ApprovalStore) error {
		called = true
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestLockedApprovalTx_ReadersNeverSeeCompletedWithOldOwner(t *testing.T) {
	f := newLockedFixture(t)
	ctx := context.Background()

	done := make(chan struct{})
	mismatches := make(chan id.UserID, 1)
	go func() {
		defer close(mismatches)
		for {
			select {
			case <-done:
				return
			default:
			}
			stored, err := f.txs.FindByID(ctx, f.tx.ID)
			if err != nil || stored.Status != models.StatusCompleted {
				continue
			}
			owner, err := f.parcels.CurrentOwner(ctx, f.parcel.ID)
			if err == nil && owner != f.buyer {
				mismatches <- owner
			}
			return
		}
	}()

	err := NewLockedApprovalTx(f.txs).RunInTx(ctx, func(ctx context.Context, st ApprovalStore) error {
		if err := st.Complete(ctx, f.tx.ID, f.now); err != nil {
			return err
		}
		return st.TransferOwnership(ctx, f.parcel.ID, f.seller, f.buyer, f.now)
	})
	require.NoError(t, err)

	// The reader exits on its own once it observes the completion.
	stale, seen := <-mismatches
	close(done)
	assert.False(t, seen, "transaction completed while parcel still owned by %s", stale)
}
