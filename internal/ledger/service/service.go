// Package service implements the transaction ledger: proposing transfers,
// visibility scoped reads, amendments while pending and the atomic approval
// that completes a transfer and moves parcel ownership in one unit of work.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"landregistry/internal/anchor"
	"landregistry/internal/ledger/models"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/policy"
	"landregistry/pkg/attrs"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

var tracer = otel.Tracer("landregistry/ledger")

type Store interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
	List(ctx context.Context, parties []id.UserID, filter models.ListFilter) ([]*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	CurrentOwner(ctx context.Context, parcelID id.ParcelID) (id.UserID, error)
}

// UserDirectory answers whether a user id is registered.
type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}

// Anchorer derives the ledger reference of a canonical record.
type Anchorer interface {
	Anchor(ctx context.Context, canonical []byte) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates transfer proposals and approvals.
type Service struct {
	transactions   Store
	approvals      ApprovalTx
	users          UserDirectory
	anchorer       Anchorer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(transactions Store, approvals ApprovalTx, users UserDirectory, anchorer Anchorer, opts ...Option) *Service {
	s := &Service{transactions: transactions, approvals: approvals, users: users, anchorer: anchorer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create proposes a PENDING transfer. The seller must be the parcel's
// current owner; unprivileged actors may only sell their own parcels.
func (s *Service) Create(ctx context.Context, actor id.Actor, req *models.CreateTransactionRequest) (*models.Transaction, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid transaction")
	}
	if !policy.CanMutatePrivileged(actor.Role) && req.FromOwner != actor.UserID {
		return nil, s.denied(ctx, actor, "create_transaction_for_other",
			dErrors.New(dErrors.CodeForbidden, "you may only create transactions for parcels you are selling"))
	}
	for _, party := range []struct {
		field  string
		userID id.UserID
	}{{"from_owner", req.FromOwner}, {"to_owner", req.ToOwner}} {
		exists, err := s.users.Exists(ctx, party.userID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
		}
		if !exists {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown "+party.field)
		}
	}
	owner, err := s.transactions.CurrentOwner(ctx, req.Parcel)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errUnknownParcel()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up parcel")
	}
	// A parcel the actor cannot see is reported exactly like a missing one.
	if !policy.CanView(actor, owner) {
		return nil, errUnknownParcel()
	}
	if owner != req.FromOwner {
		return nil, errSellerNotOwner()
	}

	now := requestcontext.Now(ctx)
	tx, err := models.NewTransaction(id.NewTransactionID(), req.Parcel, req.FromOwner, req.ToOwner, *req.Price, req.Documents, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	hash, err := s.anchor(ctx, tx.AnchorRecord())
	if err != nil {
		return nil, err
	}
	tx.TransactionHash = hash

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create transaction")
	}

	s.logAudit(ctx, audit.EventTransactionCreated, actor, tx.FromOwner,
		"subject", tx.ID.String(),
		"parcel_id", tx.Parcel.String())
	s.metrics.IncrementCreated("transaction")
	return tx, nil
}

// Get returns a transaction visible to actor: either party, or a privileged
// role. Anything else is reported as not found.
func (s *Service) Get(ctx context.Context, actor id.Actor, txID id.TransactionID) (*models.Transaction, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	tx, err := s.find(ctx, s.transactions, txID)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(actor, tx.Parties()...) {
		return nil, errTransactionNotFound()
	}
	return tx, nil
}

// List returns the transactions visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Transaction, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, policy.VisibleOwners(actor), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txs, nil
}

// Update amends price and documents of a PENDING transaction. Only the
// seller or a privileged actor may amend.
func (s *Service) Update(ctx context.Context, actor id.Actor, txID id.TransactionID, req *models.UpdateTransactionRequest) (*models.Transaction, error) {
	tx, err := s.Get(ctx, actor, txID)
	if err != nil {
		return nil, err
	}
	if !policy.CanMutatePrivileged(actor.Role) && actor.UserID != tx.FromOwner {
		return nil, s.denied(ctx, actor, "update_transaction",
			dErrors.New(dErrors.CodeForbidden, "only the seller may amend a transaction"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid transaction update")
	}
	if tx.Status != models.StatusPending {
		return nil, errNotPending(tx.Status)
	}

	if req.Price != nil {
		tx.Price = *req.Price
	}
	if req.Documents != nil {
		tx.Documents = *req.Documents
	}
	tx.UpdatedAt = requestcontext.Now(ctx)

	if err := s.transactions.Update(ctx, tx); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, errTransactionNotFound()
		case errors.Is(err, sentinel.ErrInvalidState):
			// Approved between our read and the write.
			return nil, errNotPending(models.StatusCompleted)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update transaction")
	}
	s.logAudit(ctx, audit.EventTransactionUpdated, actor, tx.FromOwner, "subject", tx.ID.String())
	return tx, nil
}

// Approve completes a PENDING transaction and hands the parcel to the buyer
// in one unit of work. Approving anything but a PENDING transaction is a
// conflict and leaves the parcel untouched.
func (s *Service) Approve(ctx context.Context, actor id.Actor, txID id.TransactionID) (*models.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txID.String()))
	defer s.metrics.ObserveTransition("approve_transaction", time.Now())

	if err := policy.RequirePrivileged(actor); err != nil {
		return nil, s.denied(ctx, actor, "approve_transaction", err)
	}

	var approved *models.Transaction
	err := s.approvals.RunInTx(ctx, func(ctx context.Context, store ApprovalStore) error {
		tx, err := s.find(ctx, store, txID)
		if err != nil {
			return err
		}
		next, changed, err := models.Approval.Apply(actor, tx.Status)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidState) {
				return errNotPending(tx.Status)
			}
			return err
		}
		if !changed {
			return errNotPending(tx.Status)
		}

		owner, err := store.CurrentOwner(ctx, tx.Parcel)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up parcel")
		}
		if owner != tx.FromOwner {
			return errSellerNotOwner()
		}

		now := requestcontext.Now(ctx)
		if err := store.Complete(ctx, txID, now); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return errNotPending(models.StatusCompleted)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete transaction")
		}
		if err := store.TransferOwnership(ctx, tx.Parcel, tx.FromOwner, tx.ToOwner, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return errSellerNotOwner()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer ownership")
		}
		tx.Status = next
		tx.UpdatedAt = now
		tx.CompletedAt = &now
		approved = tx

		// The postgres audit store joins the open transaction here.
		s.logAudit(ctx, audit.EventTransactionApproved, actor, tx.ToOwner,
			"subject", tx.ID.String(),
			"parcel_id", tx.Parcel.String(),
			"from_owner", tx.FromOwner.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementTransition("transaction", "completed")
	return approved, nil
}

type finder interface {
	FindByID(ctx context.Context, txID id.TransactionID) (*models.Transaction, error)
}

func (s *Service) find(ctx context.Context, store finder, txID id.TransactionID) (*models.Transaction, error) {
	tx, err := store.FindByID(ctx, txID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errTransactionNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}
	return tx, nil
}

func (s *Service) anchor(ctx context.Context, record any) (string, error) {
	canonical, err := anchor.Canonical(record)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode transaction")
	}
	hash, err := s.anchorer.Anchor(ctx, canonical)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor transaction")
	}
	return hash, nil
}

func errTransactionNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "transaction not found")
}

func errUnknownParcel() error {
	return dErrors.New(dErrors.CodeValidation, "unknown parcel")
}

func errSellerNotOwner() error {
	return dErrors.New(dErrors.CodeConflict, "from_owner is not the current owner of the parcel")
}

func errNotPending(status models.Status) error {
	return dErrors.New(dErrors.CodeConflict, "transaction is "+string(status)+", only PENDING transactions can change")
}

func asValidation(err error, msg string) error {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, msg)
}

// denied records a policy refusal and returns err unchanged.
func (s *Service) denied(ctx context.Context, actor id.Actor, operation string, err error) error {
	if dErrors.HasCode(err, dErrors.CodeForbidden) {
		s.metrics.IncrementDenied(operation)
		s.logAudit(ctx, audit.EventAuthorizationDenied, actor, actor.UserID,
			"subject", operation,
			"reason", dErrors.MessageOf(err))
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, actor id.Actor, userID id.UserID, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit", "user_id", userID.String())
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	e := audit.NewEvent(ctx, event, userID, actor.UserID)
	e.Subject = attrs.String(attributes, "subject")
	e.Reason = attrs.String(attributes, "reason")
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
}
