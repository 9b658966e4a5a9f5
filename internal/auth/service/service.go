// Package service issues, refreshes and revokes bearer tokens.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserAuthenticator,TokenIssuer,RevocationList,AuditPublisher

import (
	"context"
	"log/slog"
	"time"

	"landregistry/internal/auth/models"
	"landregistry/internal/auth/store/revocation"
	identity "landregistry/internal/identity/models"
	jwttoken "landregistry/internal/jwt_token"
	"landregistry/internal/platform/metrics"
	"landregistry/pkg/attrs"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	audit "landregistry/pkg/platform/audit"
	"landregistry/pkg/requestcontext"
)

// UserAuthenticator checks credentials and resolves the current role of a
// token subject.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*identity.User, error)
	Principal(ctx context.Context, userID id.UserID) (id.Actor, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, *jwttoken.Claims, error)
	GenerateRefreshToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, *jwttoken.Claims, error)
	ValidateRefreshToken(tokenString string) (*jwttoken.Claims, error)
}

// RevocationList records JTIs that must no longer be accepted.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds token lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type Service struct {
	users          UserAuthenticator
	tokens         TokenIssuer
	trl            RevocationList
	cfg            Config
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

func New(users UserAuthenticator, tokens TokenIssuer, trl RevocationList, cfg Config, opts ...Option) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 24 * time.Hour
	}
	s := &Service{users: users, tokens: tokens, trl: trl, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and issues an access and refresh token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenPair, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		s.metrics.IncrementLogin("failure")
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.logAudit(ctx, audit.EventAuthFailed, id.UserID{}, "subject", req.Username, "reason", "invalid_credentials")
		}
		return nil, err
	}

	access, _, err := s.tokens.GenerateAccessToken(user.ID, user.Role, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	refresh, _, err := s.tokens.GenerateRefreshToken(user.ID, user.Role, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue refresh token")
	}

	s.metrics.IncrementLogin("success")
	s.logAudit(ctx, audit.EventTokenIssued, user.ID)
	return &models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh issues a new access token for a valid, unrevoked refresh token.
// The role is re-read so a role change takes effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AccessToken, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateRefreshToken(req.Refresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.trl.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check token revocation")
	}
	if revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	actor, err := s.users.Principal(ctx, userID)
	if err != nil {
		return nil, err
	}

	access, _, err := s.tokens.GenerateAccessToken(actor.UserID, actor.Role, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	s.logAudit(ctx, audit.EventTokenRefreshed, actor.UserID)
	return &models.AccessToken{Access: access}, nil
}

// Logout revokes the access token the request carried and, when given, a
// refresh token belonging to the same user.
func (s *Service) Logout(ctx context.Context, actor id.Actor, req *models.LogoutRequest) error {
	if !actor.IsAuthenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req == nil {
		req = &models.LogoutRequest{}
	}
	if err := req.Validate(); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var refreshClaims *jwttoken.Claims
	if req.Refresh != "" {
		claims, err := s.tokens.ValidateRefreshToken(req.Refresh)
		if err != nil {
			return err
		}
		if claims.UserID != actor.UserID.String() {
			return dErrors.New(dErrors.CodeForbidden, "refresh token belongs to another user")
		}
		refreshClaims = claims
	}

	if err := s.revoke(ctx, requestcontext.TokenJTI(ctx), requestcontext.TokenExpiry(ctx), now); err != nil {
		return err
	}
	if refreshClaims != nil {
		if err := s.revoke(ctx, refreshClaims.ID, refreshClaims.ExpiresAtTime(), now); err != nil {
			return err
		}
	}
	s.logAudit(ctx, audit.EventTokenRevoked, actor.UserID)
	return nil
}

func (s *Service) revoke(ctx context.Context, jti string, expiresAt, now time.Time) error {
	ttl := revocation.RemainingTTL(expiresAt, now)
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.trl.RevokeToken(ctx, jti, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, userID id.UserID, attributes ...any) {
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
	e := audit.NewEvent(ctx, event, userID, userID)
	e.Subject = attrs.String(attributes, "subject")
	e.Reason = attrs.String(attributes, "reason")
	if err := s.auditPublisher.Emit(ctx, e); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
}
