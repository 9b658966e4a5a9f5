package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"landregistry/internal/anchor"
	"landregistry/internal/ledger/models"
	"landregistry/internal/ledger/store"
	parcelmodels "landregistry/internal/parcel/models"
	parcelstore "landregistry/internal/parcel/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/audit/publisher"
	auditmemory "landregistry/pkg/platform/audit/store/memory"
	"landregistry/pkg/requestcontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type knownUsers map[id.UserID]bool

func (k knownUsers) Exists(_ context.Context, userID id.UserID) (bool, error) {
	return k[userID], nil
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	parcels *parcelstore.InMemoryParcelStore
	audits  *auditmemory.InMemoryStore
	service *Service

	admin   id.Actor
	officer id.Actor
	alice   id.Actor
	bob     id.Actor
	carol   id.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	s.parcels = parcelstore.New()
	s.audits = auditmemory.NewInMemoryStore()

	s.admin = id.Actor{UserID: id.NewUserID(), Role: id.RoleAdmin}
	s.officer = id.Actor{UserID: id.NewUserID(), Role: id.RoleLandOfficer}
	s.alice = id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}
	s.bob = id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}
	s.carol = id.Actor{UserID: id.NewUserID(), Role: id.RoleNotary}
	users := knownUsers{}
	for _, a := range []id.Actor{s.admin, s.officer, s.alice, s.bob, s.carol} {
		users[a.UserID] = true
	}

	transactions := store.New(s.parcels)
	s.service = New(transactions, NewLockedApprovalTx(transactions), users, anchor.NewLedgerAnchorer(),
		WithAuditPublisher(publisher.NewPublisher(s.audits)))
}

func (s *ServiceSuite) parcelOf(owner id.Actor, number string) *parcelmodels.Parcel {
	p, err := parcelmodels.NewParcel(id.NewParcelID(), number, "3 Market Street",
		decimal.NewFromInt(400), nil, owner.UserID, requestcontext.Now(s.ctx))
	s.Require().NoError(err)
	s.Require().NoError(s.parcels.Create(s.ctx, p))
	return p
}

func (s *ServiceSuite) request(parcel id.ParcelID, from, to id.Actor) *models.CreateTransactionRequest {
	price := decimal.RequireFromString("125000.00")
	return &models.CreateTransactionRequest{
		Parcel:    parcel,
		FromOwner: from.UserID,
		ToOwner:   to.UserID,
		Price:     &price,
		Documents: []string{"QmDeed"},
	}
}

func (s *ServiceSuite) propose(actor id.Actor, parcel id.ParcelID, from, to id.Actor) *models.Transaction {
	tx, err := s.service.Create(s.ctx, actor, s.request(parcel, from, to))
	s.Require().NoError(err)
	return tx
}

func (s *ServiceSuite) ownerOf(parcelID id.ParcelID) id.UserID {
	owner, err := s.parcels.CurrentOwner(s.ctx, parcelID)
	s.Require().NoError(err)
	return owner
}

func (s *ServiceSuite) auditCount(event audit.AuditEvent) int {
	events, err := s.audits.ListByAction(s.ctx, event)
	s.Require().NoError(err)
	return len(events)
}

func (s *ServiceSuite) TestCreate() {
	p := s.parcelOf(s.alice, "LR-C1")

	s.Run("seller proposes a pending transfer with an anchor", func() {
		tx := s.propose(s.alice, p.ID, s.alice, s.bob)
		s.Equal(models.StatusPending, tx.Status)
		s.Regexp(`^0x[0-9a-f]{64}$`, tx.TransactionHash)
		s.Equal([]string{"QmDeed"}, tx.Documents)
		s.Nil(tx.CompletedAt)
		s.Equal(1, s.auditCount(audit.EventTransactionCreated))
	})

	s.Run("citizen cannot sell someone else's parcel", func() {
		_, err := s.service.Create(s.ctx, s.bob, s.request(p.ID, s.alice, s.bob))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(1, s.auditCount(audit.EventAuthorizationDenied))
	})

	s.Run("seller must be the current owner", func() {
		_, err := s.service.Create(s.ctx, s.officer, s.request(p.ID, s.bob, s.carol))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown parcel is a validation error", func() {
		_, err := s.service.Create(s.ctx, s.alice, s.request(id.NewParcelID(), s.alice, s.bob))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("someone else's parcel reads as unknown to a citizen", func() {
		bobs := s.parcelOf(s.bob, "LR-C2")
		_, hiddenErr := s.service.Create(s.ctx, s.alice, s.request(bobs.ID, s.alice, s.carol))
		_, missingErr := s.service.Create(s.ctx, s.alice, s.request(id.NewParcelID(), s.alice, s.carol))
		s.Require().Error(hiddenErr)
		s.Require().Error(missingErr)
		s.Equal(dErrors.CodeOf(missingErr), dErrors.CodeOf(hiddenErr))
		s.Equal(dErrors.MessageOf(missingErr), dErrors.MessageOf(hiddenErr))
		s.Equal(s.bob.UserID, s.ownerOf(bobs.ID))
	})

	s.Run("unknown buyer is a validation error", func() {
		stranger := id.Actor{UserID: id.NewUserID(), Role: id.RoleCitizen}
		_, err := s.service.Create(s.ctx, s.alice, s.request(p.ID, s.alice, stranger))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "to_owner")
	})

	s.Run("same parties are rejected before any lookup", func() {
		_, err := s.service.Create(s.ctx, s.alice, s.request(p.ID, s.alice, s.alice))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("anonymous actor is unauthenticated", func() {
		_, err := s.service.Create(s.ctx, id.Anonymous, s.request(p.ID, s.alice, s.bob))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestVisibility() {
	pa := s.parcelOf(s.alice, "LR-VA")
	pc := s.parcelOf(s.carol, "LR-VC")
	sale := s.propose(s.alice, pa.ID, s.alice, s.bob)
	other := s.propose(s.carol, pc.ID, s.carol, s.alice)

	s.Run("buyer sees the transaction", func() {
		got, err := s.service.Get(s.ctx, s.bob, sale.ID)
		s.Require().NoError(err)
		s.Equal(sale.ID, got.ID)
	})

	s.Run("outsider sees not found", func() {
		_, err := s.service.Get(s.ctx, s.bob, other.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("list is the union of both sides", func() {
		txs, err := s.service.List(s.ctx, s.alice, models.ListFilter{})
		s.Require().NoError(err)
		s.Len(txs, 2)

		txs, err = s.service.List(s.ctx, s.bob, models.ListFilter{})
		s.Require().NoError(err)
		s.Len(txs, 1)
	})

	s.Run("privileged roles see all and may filter by parcel", func() {
		txs, err := s.service.List(s.ctx, s.officer, models.ListFilter{Parcel: pc.ID})
		s.Require().NoError(err)
		s.Require().Len(txs, 1)
		s.Equal(other.ID, txs[0].ID)
	})

	s.Run("anonymous list is an authentication error", func() {
		_, err := s.service.List(s.ctx, id.Anonymous, models.ListFilter{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestUpdate() {
	p := s.parcelOf(s.alice, "LR-U")
	tx := s.propose(s.alice, p.ID, s.alice, s.bob)
	price := decimal.RequireFromString("130000.00")

	s.Run("seller amends price and documents", func() {
		docs := []string{"QmDeed", " QmSurvey "}
		got, err := s.service.Update(s.ctx, s.alice, tx.ID, &models.UpdateTransactionRequest{Price: &price, Documents: &docs})
		s.Require().NoError(err)
		s.True(price.Equal(got.Price))
		s.Equal([]string{"QmDeed", "QmSurvey"}, got.Documents)
		s.Equal(tx.TransactionHash, got.TransactionHash)
	})

	s.Run("buyer may not amend", func() {
		_, err := s.service.Update(s.ctx, s.bob, tx.ID, &models.UpdateTransactionRequest{Price: &price})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid price is rejected", func() {
		zero := decimal.Zero
		_, err := s.service.Update(s.ctx, s.alice, tx.ID, &models.UpdateTransactionRequest{Price: &zero})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	_, err := s.service.Approve(s.ctx, s.officer, tx.ID)
	s.Require().NoError(err)

	s.Run("completed transaction is immutable", func() {
		_, err := s.service.Update(s.ctx, s.officer, tx.ID, &models.UpdateTransactionRequest{Price: &price})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestApprove() {
	p := s.parcelOf(s.alice, "LR-AP")
	tx := s.propose(s.alice, p.ID, s.alice, s.bob)

	s.Run("citizen approval is forbidden and nothing changes", func() {
		_, err := s.service.Approve(s.ctx, s.bob, tx.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(s.alice.UserID, s.ownerOf(p.ID))
		got, err := s.service.Get(s.ctx, s.admin, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("officer approval completes and transfers ownership", func() {
		got, err := s.service.Approve(s.ctx, s.officer, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, got.Status)
		s.Require().NotNil(got.CompletedAt)
		s.Equal(s.bob.UserID, s.ownerOf(p.ID))

		stored, err := s.service.Get(s.ctx, s.bob, tx.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, stored.Status)
		s.Equal(1, s.auditCount(audit.EventTransactionApproved))
	})

	s.Run("re-approval is a conflict and the owner stays", func() {
		_, err := s.service.Approve(s.ctx, s.admin, tx.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(s.bob.UserID, s.ownerOf(p.ID))
		s.Equal(1, s.auditCount(audit.EventTransactionApproved))
	})

	s.Run("a stale sale of the same parcel cannot complete", func() {
		q := s.parcelOf(s.carol, "LR-AP2")
		first := s.propose(s.carol, q.ID, s.carol, s.alice)
		second := s.propose(s.carol, q.ID, s.carol, s.bob)

		_, err := s.service.Approve(s.ctx, s.officer, first.ID)
		s.Require().NoError(err)
		_, err = s.service.Approve(s.ctx, s.officer, second.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		s.Equal(s.alice.UserID, s.ownerOf(q.ID))
		got, err := s.service.Get(s.ctx, s.admin, second.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status, "a failed approval leaves the transaction pending")
	})

	s.Run("missing transaction is not found", func() {
		_, err := s.service.Approve(s.ctx, s.officer, id.NewTransactionID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestConcurrentApproveSucceedsOnce() {
	p := s.parcelOf(s.alice, "LR-CC")
	tx := s.propose(s.alice, p.ID, s.alice, s.bob)

	const approvers = 8
	results := make([]error, approvers)
	var g errgroup.Group
	for i := range approvers {
		g.Go(func() error {
			_, results[i] = s.service.Approve(s.ctx, s.officer, tx.ID)
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	var succeeded, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts++
		}
	}
	s.Equal(1, succeeded)
	s.Equal(approvers-1, conflicts)
	s.Equal(s.bob.UserID, s.ownerOf(p.ID))
	s.Equal(1, s.auditCount(audit.EventTransactionApproved))
}
