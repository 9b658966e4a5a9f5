package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"landregistry/internal/ledger/models"
	parcelmodels "landregistry/internal/parcel/models"
	parcelstore "landregistry/internal/parcel/store"
	"landregistry/internal/platform/database"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type transactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
	List(ctx context.Context, parties []id.UserID, filter models.ListFilter) ([]*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	Complete(ctx context.Context, txID id.TransactionID, now time.Time) error
	CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error)
	TransferOwnership(ctx context.Context, parcelID id.ParcelID, from, to id.UserID, now time.Time) error
}

type parcelCreator interface {
	Create(ctx context.Context, parcel *parcelmodels.Parcel) error
}

// TransactionStoreSuite holds the behaviour every backend must share.
// newBackend returns a transaction store and the parcel store it shares
// ownership with; newUser returns a user id the backend accepts.
type TransactionStoreSuite struct {
	suite.Suite
	newBackend func() (transactionStore, parcelCreator)
	newUser    func() id.UserID
	store      transactionStore
	parcels    parcelCreator
	base       time.Time
	seq        int
}

func (s *TransactionStoreSuite) SetupTest() {
	s.store, s.parcels = s.newBackend()
	s.base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.seq = 0
}

func TestInMemoryTransactionStoreSuite(t *testing.T) {
	suite.Run(t, &TransactionStoreSuite{
		newBackend: func() (transactionStore, parcelCreator) {
			parcels := parcelstore.New()
			return New(parcels), parcels
		},
		newUser: id.NewUserID,
	})
}

func TestSQLiteTransactionStoreSuite(t *testing.T) {
	suite.Run(t, &TransactionStoreSuite{
		newBackend: func() (transactionStore, parcelCreator) {
			db := openSQLite(t)
			parcels, err := parcelstore.NewSQLite(db)
			require.NoError(t, err)
			st, err := NewSQLite(db)
			require.NoError(t, err)
			return st, parcels
		},
		newUser: id.NewUserID,
	})
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseSQLite(db) })
	return db
}

func (s *TransactionStoreSuite) newParcel(owner id.UserID) *parcelmodels.Parcel {
	s.seq++
	p, err := parcelmodels.NewParcel(id.NewParcelID(), fmt.Sprintf("LR-T%03d", s.seq), "7 Quay Street",
		decimal.NewFromInt(300), nil, owner, s.base)
	s.Require().NoError(err)
	s.Require().NoError(s.parcels.Create(context.Background(), p))
	return p
}

// newTransaction builds transactions created one minute apart so ordering is deterministic.
func (s *TransactionStoreSuite) newTransaction(parcel id.ParcelID, from, to id.UserID) *models.Transaction {
	s.seq++
	created := s.base.Add(time.Duration(s.seq) * time.Minute)
	tx, err := models.NewTransaction(id.NewTransactionID(), parcel, from, to,
		decimal.RequireFromString("250000.50"), []string{"QmDeed"}, created)
	s.Require().NoError(err)
	tx.TransactionHash = "0xfeed"
	s.Require().NoError(s.store.Create(context.Background(), tx))
	return tx
}

func (s *TransactionStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	seller, buyer := s.newUser(), s.newUser()
	p := s.newParcel(seller)
	tx := s.newTransaction(p.ID, seller, buyer)

	got, err := s.store.FindByID(ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.Parcel)
	s.Equal(seller, got.FromOwner)
	s.Equal(buyer, got.ToOwner)
	s.True(tx.Price.Equal(got.Price), "price %s != %s", tx.Price, got.Price)
	s.Equal(models.StatusPending, got.Status)
	s.Equal("0xfeed", got.TransactionHash)
	s.Equal([]string{"QmDeed"}, got.Documents)
	s.Nil(got.CompletedAt)

	got.Documents[0] = "mutated"
	again, err := s.store.FindByID(ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal([]string{"QmDeed"}, again.Documents)

	_, err = s.store.FindByID(ctx, id.NewTransactionID())
	s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
}

func (s *TransactionStoreSuite) TestListByParty() {
	ctx := context.Background()
	alice, bob, carol := s.newUser(), s.newUser(), s.newUser()
	pa := s.newParcel(alice)
	pb := s.newParcel(bob)
	sale := s.newTransaction(pa.ID, alice, bob)
	purchase := s.newTransaction(pb.ID, bob, alice)
	other := s.newTransaction(pb.ID, bob, carol)

	all, err := s.store.List(ctx, nil, models.ListFilter{})
	s.Require().NoError(err)
	s.Equal([]id.TransactionID{other.ID, purchase.ID, sale.ID}, ids(all))

	mine, err := s.store.List(ctx, []id.UserID{alice}, models.ListFilter{})
	s.Require().NoError(err)
	s.Equal([]id.TransactionID{purchase.ID, sale.ID}, ids(mine), "seller and buyer side are both visible")

	none, err := s.store.List(ctx, []id.UserID{}, models.ListFilter{})
	s.Require().NoError(err)
	s.Empty(none)

	byParcel, err := s.store.List(ctx, nil, models.ListFilter{Parcel: pb.ID})
	s.Require().NoError(err)
	s.Equal([]id.TransactionID{other.ID, purchase.ID}, ids(byParcel))

	s.Require().NoError(s.store.Complete(ctx, sale.ID, s.base))
	done, err := s.store.List(ctx, []id.UserID{bob}, models.ListFilter{Status: models.StatusCompleted})
	s.Require().NoError(err)
	s.Equal([]id.TransactionID{sale.ID}, ids(done))
}

func (s *TransactionStoreSuite) TestUpdateOnlyWhilePending() {
	ctx := context.Background()
	seller, buyer := s.newUser(), s.newUser()
	tx := s.newTransaction(s.newParcel(seller).ID, seller, buyer)

	tx.Price = decimal.RequireFromString("99.99")
	tx.Documents = []string{"QmA", "QmB"}
	tx.UpdatedAt = s.base.Add(time.Hour)
	s.Require().NoError(s.store.Update(ctx, tx))

	got, err := s.store.FindByID(ctx, tx.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("99.99").Equal(got.Price))
	s.Equal([]string{"QmA", "QmB"}, got.Documents)

	s.Require().NoError(s.store.Complete(ctx, tx.ID, s.base))
	err = s.store.Update(ctx, tx)
	s.True(errors.Is(err, sentinel.ErrInvalidState), "got %v", err)

	tx.ID = id.NewTransactionID()
	err = s.store.Update(ctx, tx)
	s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
}

func (s *TransactionStoreSuite) TestCompleteIsConditional() {
	ctx := context.Background()
	seller, buyer := s.newUser(), s.newUser()
	tx := s.newTransaction(s.newParcel(seller).ID, seller, buyer)
	completedAt := s.base.Add(2 * time.Hour)

	s.Require().NoError(s.store.Complete(ctx, tx.ID, completedAt))
	got, err := s.store.FindByID(ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.Require().NotNil(got.CompletedAt)
	s.True(completedAt.Equal(*got.CompletedAt))

	err = s.store.Complete(ctx, tx.ID, completedAt)
	s.True(errors.Is(err, sentinel.ErrInvalidState), "got %v", err)

	err = s.store.Complete(ctx, id.NewTransactionID(), completedAt)
	s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
}

func (s *TransactionStoreSuite) TestTransferOwnership() {
	ctx := context.Background()
	seller, buyer := s.newUser(), s.newUser()
	p := s.newParcel(seller)

	err := s.store.TransferOwnership(ctx, p.ID, buyer, seller, s.base)
	s.True(errors.Is(err, sentinel.ErrConflict), "got %v", err)

	s.Require().NoError(s.store.TransferOwnership(ctx, p.ID, seller, buyer, s.base))
	owner, err := s.store.CurrentOwner(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(buyer, owner)

	err = s.store.TransferOwnership(ctx, p.ID, seller, buyer, s.base)
	s.True(errors.Is(err, sentinel.ErrConflict), "second transfer from the old owner must fail, got %v", err)

	_, err = s.store.CurrentOwner(ctx, id.NewParcelID())
	s.True(errors.Is(err, sentinel.ErrNotFound), "got %v", err)
}

func ids(txs []*models.Transaction) []id.TransactionID {
	out := make([]id.TransactionID, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

func TestSQLiteApprovalRollsBackTogether(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	parcels, err := parcelstore.NewSQLite(db)
	require.NoError(t, err)
	st, err := NewSQLite(db)
	require.NoError(t, err)

	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	seller, buyer, stranger := id.NewUserID(), id.NewUserID(), id.NewUserID()
	p, err := parcelmodels.NewParcel(id.NewParcelID(), "LR-RB", "addr", decimal.NewFromInt(10), nil, seller, now)
	require.NoError(t, err)
	require.NoError(t, parcels.Create(ctx, p))
	tx, err := models.NewTransaction(id.NewTransactionID(), p.ID, stranger, buyer, decimal.NewFromInt(5), nil, now)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, tx))

	err = db.Transaction(func(gtx *gorm.DB) error {
		unit := WithTx(gtx)
		if err := unit.Complete(ctx, tx.ID, now); err != nil {
			return err
		}
		return unit.TransferOwnership(ctx, p.ID, stranger, buyer, now)
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := st.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status, "completion must roll back with the failed transfer")
	owner, err := st.CurrentOwner(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, seller, owner)
}
