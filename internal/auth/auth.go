// Package auth issues and revokes bearer tokens for registered users.
package auth

import (
	"log/slog"

	"landregistry/internal/auth/handler"
	"landregistry/internal/auth/service"
)

// Service exposes login, refresh and logout.
type Service = service.Service

// Service options.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

// Handler wires token endpoints to the auth service.
type Handler = handler.Handler

// NewService constructs the auth service.
func NewService(users service.UserAuthenticator, tokens service.TokenIssuer, trl service.RevocationList, cfg service.Config, opts ...service.Option) *Service {
	return service.New(users, tokens, trl, cfg, opts...)
}

// NewHandler constructs the HTTP handler for token routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
