// Package service implements the document store: uploads attached to a
// visible parcel, uploader scoped reads, metadata patches and the one-way
// verification flag.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"landregistry/internal/anchor"
	"landregistry/internal/document/models"
	parcelmodels "landregistry/internal/parcel/models"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/policy"
	"landregistry/pkg/attrs"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

var tracer = otel.Tracer("landregistry/document")

type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, uploaders []id.UserID, filter models.ListFilter) ([]*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	Verify(ctx context.Context, docID id.DocumentID, verifier id.UserID, now time.Time) error
}

// ParcelLookup resolves the parcel a document is attached to.
type ParcelLookup interface {
	FindByID(ctx context.Context, parcelID id.ParcelID) (*parcelmodels.Parcel, error)
}

// ContentAddresser derives the storage address of uploaded bytes.
type ContentAddresser interface {
	Address(ctx context.Context, data []byte) (string, error)
}

// Anchorer derives the ledger reference of a canonical record.
type Anchorer interface {
	Anchor(ctx context.Context, canonical []byte) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates document uploads and verification.
type Service struct {
	documents      Store
	parcels        ParcelLookup
	addresser      ContentAddresser
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

func New(documents Store, parcels ParcelLookup, addresser ContentAddresser, anchorer Anchorer, opts ...Option) *Service {
	s := &Service{documents: documents, parcels: parcels, addresser: addresser, anchorer: anchorer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records an unverified document on a parcel the actor can see. The
// uploader is always the actor. Uploaded bytes take precedence over a
// caller-supplied ipfs_hash, which is otherwise stored verbatim.
func (s *Service) Create(ctx context.Context, actor id.Actor, req *models.CreateDocumentRequest) (*models.Document, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid document")
	}

	parcel, err := s.parcels.FindByID(ctx, req.Parcel)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errUnknownParcel()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parcel")
	}
	if !policy.CanView(actor, parcel.CurrentOwner) {
		return nil, errUnknownParcel()
	}

	hash := req.IPFSHash
	if len(req.Content) > 0 {
		hash, err = s.addresser.Address(ctx, req.Content)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to address document content")
		}
	}

	now := requestcontext.Now(ctx)
	doc, err := models.NewDocument(id.NewDocumentID(), req.Title, req.DocumentType, parcel.ID,
		actor.UserID, hash, req.Metadata, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	ref, err := s.anchor(ctx, doc.AnchorRecord())
	if err != nil {
		return nil, err
	}
	doc.BlockchainReference = ref

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	s.logAudit(ctx, audit.EventDocumentUploaded, actor, actor.UserID,
		"subject", doc.ID.String(),
		"parcel_id", parcel.ID.String(),
		"document_type", string(doc.DocumentType))
	s.metrics.IncrementCreated("document")
	return doc, nil
}

// Get returns a document visible to actor. Documents the actor may not see
// are reported as not found.
func (s *Service) Get(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	doc, err := s.find(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(actor, doc.UploadedBy) {
		return nil, errDocumentNotFound()
	}
	return doc, nil
}

// List returns the documents visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Document, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	docs, err := s.documents.List(ctx, policy.VisibleOwners(actor), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// Update patches title, type and metadata of an unverified document. Only
// the uploader or a privileged actor may patch.
func (s *Service) Update(ctx context.Context, actor id.Actor, docID id.DocumentID, req *models.UpdateDocumentRequest) (*models.Document, error) {
	doc, err := s.Get(ctx, actor, docID)
	if err != nil {
		return nil, err
	}
	if doc.UploadedBy != actor.UserID && !policy.CanMutatePrivileged(actor.Role) {
		return nil, s.denied(ctx, actor, "update_document",
			dErrors.New(dErrors.CodeForbidden, "only the uploader may update this document"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid document update")
	}
	if doc.IsVerified {
		return nil, errVerifiedImmutable()
	}

	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.DocumentType != nil {
		doc.DocumentType = *req.DocumentType
	}
	if req.Metadata != nil {
		doc.Metadata = req.Metadata
	}
	doc.UpdatedAt = requestcontext.Now(ctx)

	if err := s.documents.Update(ctx, doc); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, errDocumentNotFound()
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, errVerifiedImmutable()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
	}
	s.logAudit(ctx, audit.EventDocumentUpdated, actor, doc.UploadedBy, "subject", doc.ID.String())
	return doc, nil
}

// Verify flips is_verified to true and records the verifier. Verifying an
// already verified document is a no-op success that keeps the first verifier.
func (s *Service) Verify(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error) {
	ctx, span := tracer.Start(ctx, "document.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", docID.String()))
	defer s.metrics.ObserveTransition("verify_document", time.Now())

	if err := policy.RequirePrivileged(actor); err != nil {
		return nil, s.denied(ctx, actor, "verify_document", err)
	}
	doc, err := s.find(ctx, docID)
	if err != nil {
		return nil, err
	}
	if _, changed, err := models.Verification.Apply(actor, doc.IsVerified); err != nil || !changed {
		return doc, err
	}

	now := requestcontext.Now(ctx)
	if err := s.documents.Verify(ctx, docID, actor.UserID, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// Another verifier won; report their result.
			return s.find(ctx, docID)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, errDocumentNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify document")
	}
	doc.IsVerified = true
	doc.VerifiedBy = &actor.UserID
	doc.VerifiedAt = &now
	doc.UpdatedAt = now

	s.logAudit(ctx, audit.EventDocumentVerified, actor, doc.UploadedBy, "subject", doc.ID.String())
	s.metrics.IncrementTransition("document", "verified")
	return doc, nil
}

func (s *Service) find(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errDocumentNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

func (s *Service) anchor(ctx context.Context, record any) (string, error) {
	canonical, err := anchor.Canonical(record)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode document")
	}
	ref, err := s.anchorer.Anchor(ctx, canonical)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to anchor document")
	}
	return ref, nil
}

func errDocumentNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "document not found")
}

func errUnknownParcel() error {
	return dErrors.New(dErrors.CodeValidation, "unknown parcel")
}

func errVerifiedImmutable() error {
	return dErrors.New(dErrors.CodeConflict, "verified documents cannot be modified")
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
