// Package document owns parcel documents: upload metadata, content
// addressing and verification.
package document

import (
	"log/slog"

	"landregistry/internal/document/handler"
	"landregistry/internal/document/service"
)

// Service exposes document orchestration.
type Service = service.Service

// Service options.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

// Handler wires HTTP endpoints to the document service.
type Handler = handler.Handler

// NewService constructs the document service.
func NewService(documents service.Store, parcels service.ParcelLookup, addresser service.ContentAddresser, anchorer service.Anchorer, opts ...service.Option) *Service {
	return service.New(documents, parcels, addresser, anchorer, opts...)
}

// NewHandler constructs the HTTP handler for document routes.
func NewHandler(s *Service, logger *slog.Logger, opts ...handler.Option) *Handler {
	return handler.New(s, logger, opts...)
}
