// Package service implements the account lifecycle: registration, profile
// reads and patches, password changes and the one-way verifyUser flip.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"landregistry/internal/identity/models"
	"landregistry/internal/identity/secrets"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/policy"
	"landregistry/pkg/attrs"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

var tracer = otel.Tracer("landregistry/identity")

type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, ids []id.UserID) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID id.UserID, hash string, now time.Time) error
	MarkVerified(ctx context.Context, userID id.UserID, now time.Time) error
	CountByRole(ctx context.Context, role id.Role) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates user accounts.
type Service struct {
	users          Store
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

func New(users Store, opts ...Option) *Service {
	s := &Service{users: users}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified account. Anyone may register a CITIZEN or
// NOTARY; ADMIN and LAND_OFFICER accounts require an authenticated ADMIN.
func (s *Service) Register(ctx context.Context, actor id.Actor, req *models.RegisterRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid registration request")
	}

	role := req.Role()
	if role == id.RoleAdmin || role == id.RoleLandOfficer {
		if err := requireAdmin(actor); err != nil {
			return nil, s.denied(ctx, actor, "register_privileged", err)
		}
	}
	return s.create(ctx, actor, req, role, false)
}

// Bootstrap creates a verified ADMIN without an acting user. It refuses to
// run once any administrator exists.
func (s *Service) Bootstrap(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	req.Normalize()
	req.UserType = string(id.RoleAdmin)
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid administrator")
	}
	admins, err := s.users.CountByRole(ctx, id.RoleAdmin)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count administrators")
	}
	if admins > 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "an administrator already exists")
	}
	return s.create(ctx, id.Anonymous, req, id.RoleAdmin, true)
}

func (s *Service) create(ctx context.Context, actor id.Actor, req *models.RegisterRequest, role id.Role, verified bool) (*models.User, error) {
	hash, err := secrets.Hash(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user, err := models.NewUser(id.NewUserID(), req.Username, req.NationalID, role, hash, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	user.Email = req.Email
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.PhoneNumber = req.PhoneNumber
	user.BlockchainAddress = req.BlockchainAddress
	user.IsVerified = verified

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a user with this username or national_id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.EventUserRegistered, actor, user.ID,
		"subject", user.Username,
		"user_type", string(user.Role))
	s.metrics.IncrementCreated("user")
	return user, nil
}

// Get returns a user visible to actor: privileged actors see everyone,
// others only themselves. Invisible users are reported as not found.
func (s *Service) Get(ctx context.Context, actor id.Actor, userID id.UserID) (*models.User, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if !policy.CanView(actor, userID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return s.find(ctx, userID)
}

// Me returns the acting user's own account.
func (s *Service) Me(ctx context.Context, actor id.Actor) (*models.User, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	return s.find(ctx, actor.UserID)
}

// List returns the users visible to actor, ordered by username.
func (s *Service) List(ctx context.Context, actor id.Actor) ([]*models.User, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, policy.VisibleOwners(actor))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// Update patches profile fields. Only privileged actors may set the
// blockchain address.
func (s *Service) Update(ctx context.Context, actor id.Actor, userID id.UserID, req *models.UpdateUserRequest) (*models.User, error) {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if !policy.CanView(actor, userID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err, "invalid update request")
	}
	if req.BlockchainAddress != nil && !policy.CanMutatePrivileged(actor.Role) {
		return nil, s.denied(ctx, actor, "update_blockchain_address",
			dErrors.New(dErrors.CodeForbidden, "only administrators and land officers may set blockchain_address"))
	}

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.BlockchainAddress != nil {
		user.BlockchainAddress = *req.BlockchainAddress
	}
	user.UpdatedAt = requestcontext.Now(ctx)

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	s.logAudit(ctx, audit.EventUserUpdated, actor, user.ID, "subject", user.Username)
	return user, nil
}

// ChangePassword replaces the acting user's password after checking the
// current one. Role and verification status are untouched.
func (s *Service) ChangePassword(ctx context.Context, actor id.Actor, req *models.ChangePasswordRequest) error {
	if err := policy.RequireAuthenticated(actor); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return asValidation(err, "invalid password change request")
	}

	user, err := s.find(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := secrets.Verify(req.CurrentPassword, user.PasswordHash); err != nil {
		if errors.Is(err, secrets.ErrMismatch) {
			return dErrors.New(dErrors.CodeValidation, "current password is incorrect")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	if err := models.ValidatePassword(req.NewPassword, user.Username); err != nil {
		return err
	}
	hash, err := secrets.Hash(req.NewPassword)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to change password")
	}
	s.logAudit(ctx, audit.EventPasswordChanged, actor, user.ID, "subject", user.Username)
	return nil
}

// VerifyUser flips is_verified from false to true. Verifying a verified
// user is a no-op success; there is no reversal.
func (s *Service) VerifyUser(ctx context.Context, actor id.Actor, userID id.UserID) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "identity.VerifyUser")
	defer span.End()
	defer s.metrics.ObserveTransition("verify_user", time.Now())

	if err := policy.RequirePrivileged(actor); err != nil {
		return nil, s.denied(ctx, actor, "verify_user", err)
	}
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	_, changed, err := models.Verification.Apply(actor, user.IsVerified)
	if err != nil {
		return nil, err
	}
	if !changed {
		return user, nil
	}

	now := requestcontext.Now(ctx)
	if err := s.users.MarkVerified(ctx, userID, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// Lost a race with another verifier; the outcome is the same.
			return s.find(ctx, userID)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify user")
	}
	user.IsVerified = true
	user.UpdatedAt = now

	s.logAudit(ctx, audit.EventUserVerified, actor, user.ID, "subject", user.Username)
	s.metrics.IncrementTransition("user", "verified")
	return user, nil
}

// Authenticate checks a username and password. Unknown usernames and wrong
// passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "no active account found with the given credentials")

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = secrets.VerifyUnknown(password)
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, secrets.ErrMismatch) {
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	return user, nil
}

// Principal resolves the actor a token subject stands for.
func (s *Service) Principal(ctx context.Context, userID id.UserID) (id.Actor, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.Anonymous, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
		}
		return id.Anonymous, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user.Actor(), nil
}

// Exists reports whether userID names a registered user.
func (s *Service) Exists(ctx context.Context, userID id.UserID) (bool, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return true, nil
}

func (s *Service) find(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func requireAdmin(actor id.Actor) error {
	if !actor.IsAuthenticated() || actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "only administrators may create privileged accounts")
	}
	return nil
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
