package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/ledger/models"
	parcelmodels "landregistry/internal/parcel/models"
	parcelstore "landregistry/internal/parcel/store"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

func TestInMemoryApplyApproval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	seller, buyer := id.NewUserID(), id.NewUserID()

	setup := func(t *testing.T) (*InMemoryTransactionStore, *parcelstore.InMemoryParcelStore, *parcelmodels.Parcel, *models.Transaction) {
		parcels := parcelstore.New()
		txs := New(parcels)
		parcel, err := parcelmodels.NewParcel(id.NewParcelID(), "LR-AP", "addr", decimal.NewFromInt(1), nil, seller, now)
		require.NoError(t, err)
		require.NoError(t, parcels.Create(ctx, parcel))
		tx, err := models.NewTransaction(id.NewTransactionID(), parcel.ID, seller, buyer, decimal.NewFromInt(1), nil, now)
		require.NoError(t, err)
		require.NoError(t, txs.Create(ctx, tx))
		return txs, parcels, parcel, tx
	}

	t.Run("completes and transfers together", func(t *testing.T) {
		txs, parcels, parcel, tx := setup(t)
		require.NoError(t, txs.ApplyApproval(ctx, tx.ID, now, parcel.ID, seller, buyer))

		stored, err := txs.FindByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, stored.Status)
		owner, err := parcels.CurrentOwner(ctx, parcel.ID)
		require.NoError(t, err)
		assert.Equal(t, buyer, owner)
	})

	t.Run("completed transaction leaves the parcel alone", func(t *testing.T) {
		txs, parcels, parcel, tx := setup(t)
		require.NoError(t, txs.Complete(ctx, tx.ID, now))

		err := txs.ApplyApproval(ctx, tx.ID, now, parcel.ID, seller, buyer)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
		owner, err := parcels.CurrentOwner(ctx, parcel.ID)
		require.NoError(t, err)
		assert.Equal(t, seller, owner)
	})

	t.Run("owner mismatch leaves the transaction pending", func(t *testing.T) {
		txs, _, parcel, tx := setup(t)
		err := txs.ApplyApproval(ctx, tx.ID, now, parcel.ID, buyer, seller)
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		stored, err := txs.FindByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status)
	})
}
