// Package parcel owns the land parcel registry.
package parcel

import (
	"log/slog"

	"landregistry/internal/parcel/handler"
	"landregistry/internal/parcel/service"
)

// Service exposes parcel orchestration.
type Service = service.Service

// Service options.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

// Handler wires HTTP endpoints to the parcel service.
type Handler = handler.Handler

// NewService constructs the parcel service.
func NewService(parcels service.Store, users service.UserDirectory, anchorer service.Anchorer, opts ...service.Option) *Service {
	return service.New(parcels, users, anchorer, opts...)
}

// NewHandler constructs the HTTP handler for parcel routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
