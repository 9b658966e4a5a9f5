// Package ledger owns land transactions: transfer proposals and their
// approval.
package ledger

import (
	"log/slog"

	"landregistry/internal/ledger/handler"
	"landregistry/internal/ledger/service"
)

// Service exposes ledger orchestration.
type Service = service.Service

// Service options.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

// Handler wires HTTP endpoints to the ledger service.
type Handler = handler.Handler

// NewService constructs the ledger service. approvals is the unit of work
// approve runs in; use service.NewLockedApprovalTx for the in-memory store.
func NewService(transactions service.Store, approvals service.ApprovalTx, users service.UserDirectory, anchorer service.Anchorer, opts ...service.Option) *Service {
	return service.New(transactions, approvals, users, anchorer, opts...)
}

// NewHandler constructs the HTTP handler for transaction routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
