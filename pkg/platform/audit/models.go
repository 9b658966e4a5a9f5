package audit

import (
	"context"
	"time"

	id "landregistry/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers registry facts with legal significance:
	// registrations, verifications, ownership transfers.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication and authorization failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as token issuance.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// UserID is the user the event concerns: the registered user, the parcel
	// owner, the transferee.
	UserID id.UserID `json:"user_id"`
	// ActorID is who performed the action when different from UserID.
	ActorID   string `json:"actor_id,omitempty"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can be queried.
type Lister interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}

type AuditEvent string

const (
	// Identity events
	EventUserRegistered  AuditEvent = "user_registered"
	EventUserVerified    AuditEvent = "user_verified"
	EventUserUpdated     AuditEvent = "user_updated"
	EventPasswordChanged AuditEvent = "password_changed"

	// Auth events
	EventTokenIssued    AuditEvent = "token_issued"
	EventTokenRefreshed AuditEvent = "token_refreshed"
	EventTokenRevoked   AuditEvent = "token_revoked"
	EventAuthFailed     AuditEvent = "auth_failed"

	// Registry events
	EventParcelRegistered AuditEvent = "parcel_registered"
	EventParcelUpdated    AuditEvent = "parcel_updated"
	EventParcelVerified   AuditEvent = "parcel_verified"

	// Ledger events
	EventTransactionCreated  AuditEvent = "transaction_created"
	EventTransactionUpdated  AuditEvent = "transaction_updated"
	EventTransactionApproved AuditEvent = "transaction_approved"

	// Document events
	EventDocumentUploaded AuditEvent = "document_uploaded"
	EventDocumentUpdated  AuditEvent = "document_updated"
	EventDocumentVerified AuditEvent = "document_verified"

	// Policy
	EventAuthorizationDenied AuditEvent = "authorization_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:      CategoryCompliance,
	EventUserVerified:        CategoryCompliance,
	EventPasswordChanged:     CategoryCompliance,
	EventParcelRegistered:    CategoryCompliance,
	EventParcelVerified:      CategoryCompliance,
	EventTransactionCreated:  CategoryCompliance,
	EventTransactionApproved: CategoryCompliance,
	EventDocumentUploaded:    CategoryCompliance,
	EventDocumentVerified:    CategoryCompliance,

	EventAuthFailed:          CategorySecurity,
	EventTokenRevoked:        CategorySecurity,
	EventAuthorizationDenied: CategorySecurity,

	EventTokenIssued:        CategoryOperations,
	EventTokenRefreshed:     CategoryOperations,
	EventUserUpdated:        CategoryOperations,
	EventParcelUpdated:      CategoryOperations,
	EventTransactionUpdated: CategoryOperations,
	EventDocumentUpdated:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
