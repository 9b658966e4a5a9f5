// Package identity owns user accounts: registration, profiles, password
// changes and verification.
package identity

import (
	"log/slog"

	"landregistry/internal/identity/handler"
	"landregistry/internal/identity/service"
)

// Service exposes account orchestration.
type Service = service.Service

// Service options.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

// Handler wires HTTP endpoints to the identity service.
type Handler = handler.Handler

// NewService constructs the identity service over a user store.
func NewService(users service.Store, opts ...service.Option) *Service {
	return service.New(users, opts...)
}

// NewHandler constructs the HTTP handler for account routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
