// Package service implements the parcel registry: registration, visibility
// scoped reads, descriptive patches and the one-way PENDING to ACTIVE
// verification.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"landregistry/internal/anchor"
	"landregistry/internal/parcel/models"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/policy"
	"landregistry/pkg/attrs"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

var tracer = otel.Tracer("landregistry/parcel")

type Store interface {
	Create(ctx context.Context, parcel *models.Parcel) error
	FindByID(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error)
	List(ctx context.Context, owners []id.UserID, filter models.ListFilter) ([]*models.Parcel, error)
	Update(ctx context.Context, parcel *models.Parcel, onlyIf models.Status) error
	Transition(ctx context.Context, parcelID id.ParcelID, from, to models.Status, now time.Time) error
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

// Service orchestrates parcel registration and verification.
type Service struct {
	parcels        Store
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

func New(parcels Store, users UserDirectory, anchorer Anchorer, opts ...Option) *Service {
	s := &Service{parcels: parcels, users: users, anchorer: anchorer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a PENDING parcel. Privileged actors may register for any
// existing user; everyone else only for themselves.
func (s *Service) Create(ctx context.Context, actor id.Actor, req *models.CreateParcelRequest) (*models.Parcel, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid parcel")
	}

	owner := actor.UserID
	if req.CurrentOwner != nil {
		owner = *req.CurrentOwner
	}
	if owner != actor.UserID {
		if !policy.CanMutatePrivileged(actor.Role) {
			return nil, s.denied(ctx, actor, "register_parcel_for_other",
				dErrors.New(dErrors.CodeForbidden, "you may only register parcels you own"))
		}
		exists, err := s.users.Exists(ctx, owner)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown current_owner")
		}
	}

	now := requestcontext.Now(ctx)
	parcel, err := models.NewParcel(id.NewParcelID(), req.ParcelID, req.Address, *req.Area, req.Coordinates, owner, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	hash, err := s.anchor(ctx, parcel.AnchorRecord())
	if err != nil {
		return nil, err
	}
	parcel.BlockchainHash = hash

	if err := s.parcels.Create(ctx, parcel); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a parcel with this parcel_id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register parcel")
	}

	s.logAudit(ctx, audit.EventParcelRegistered, actor, parcel.CurrentOwner,
		"subject", parcel.ParcelNumber,
		"parcel_id", parcel.ID.String())
	s.metrics.IncrementCreated("parcel")
	return parcel, nil
}

// Get returns a parcel visible to actor. Parcels the actor may not see are
// reported as not found.
func (s *Service) Get(ctx context.Context, actor id.Actor, parcelID id.ParcelID) (*models.Parcel, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	parcel, err := s.find(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(actor, parcel.CurrentOwner) {
		return nil, errParcelNotFound()
	}
	return parcel, nil
}

// List returns the parcels visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Parcel, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	parcels, err := s.parcels.List(ctx, policy.VisibleOwners(actor), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list parcels")
	}
	return parcels, nil
}

// Update patches address, area and coordinates. Privileged actors may patch
// at any time; the owner only while the parcel is PENDING.
func (s *Service) Update(ctx context.Context, actor id.Actor, parcelID id.ParcelID, req *models.UpdateParcelRequest) (*models.Parcel, error) {
	parcel, err := s.Get(ctx, actor, parcelID)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid parcel update")
	}

	var onlyIf models.Status
	if !policy.CanMutatePrivileged(actor.Role) {
		if parcel.Status != models.StatusPending {
			return nil, s.denied(ctx, actor, "update_parcel", errOwnerUpdateClosed())
		}
		onlyIf = models.StatusPending
	}

	if req.Address != nil {
		parcel.Address = *req.Address
	}
	if req.Area != nil {
		parcel.Area = *req.Area
	}
	if req.Coordinates != nil {
		parcel.Coordinates = req.Coordinates
	}
	parcel.UpdatedAt = requestcontext.Now(ctx)

	if err := s.parcels.Update(ctx, parcel, onlyIf); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, errParcelNotFound()
		case errors.Is(err, sentinel.ErrInvalidState):
			// Verified between our read and the write.
			return nil, s.denied(ctx, actor, "update_parcel", errOwnerUpdateClosed())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update parcel")
	}
	s.logAudit(ctx, audit.EventParcelUpdated, actor, parcel.CurrentOwner, "subject", parcel.ParcelNumber)
	return parcel, nil
}

// Verify moves a parcel from PENDING to ACTIVE. Verifying an ACTIVE parcel is
// a no-op success; DISPUTED and INACTIVE parcels cannot be verified.
func (s *Service) Verify(ctx context.Context, actor id.Actor, parcelID id.ParcelID) (*models.Parcel, error) {
	ctx, span := tracer.Start(ctx, "parcel.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("parcel.id", parcelID.String()))
	defer s.metrics.ObserveTransition("verify_parcel", time.Now())

	if err := policy.RequirePrivileged(actor); err != nil {
		return nil, s.denied(ctx, actor, "verify_parcel", err)
	}
	parcel, err := s.find(ctx, parcelID)
	if err != nil {
		return nil, err
	}

	next, changed, err := models.Verification.Apply(actor, parcel.Status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return parcel, nil
	}

	now := requestcontext.Now(ctx)
	if err := s.parcels.Transition(ctx, parcelID, parcel.Status, next, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			return s.afterLostRace(ctx, actor, parcelID)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, errParcelNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify parcel")
	}
	parcel.Status = next
	parcel.UpdatedAt = now

	s.logAudit(ctx, audit.EventParcelVerified, actor, parcel.CurrentOwner,
		"subject", parcel.ParcelNumber,
		"parcel_id", parcel.ID.String())
	s.metrics.IncrementTransition("parcel", "active")
	return parcel, nil
}

// afterLostRace re-evaluates the transition against the state another writer
// left behind.
func (s *Service) afterLostRace(ctx context.Context, actor id.Actor, parcelID id.ParcelID) (*models.Parcel, error) {
	parcel, err := s.find(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	if _, _, err := models.Verification.Apply(actor, parcel.Status); err != nil {
		return nil, err
	}
	return parcel, nil
}

func (s *Service) find(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	parcel, err := s.parcels.FindByID(ctx, parcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errParcelNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parcel")
	}
	return parcel, nil
}

func (s *Service) anchor(ctx context.Context, record any) (string, error) {
	canonical, err := anchor.Canonical(record)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode parcel")
	}
	hash, err := s.anchorer.Anchor(ctx, canonical)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor parcel")
	}
	return hash, nil
}

func errParcelNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "parcel not found")
}

func errOwnerUpdateClosed() error {
	return dErrors.New(dErrors.CodeForbidden, "only pending parcels may be updated by their owner")
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
