package audit

import (
	"context"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

// NewEvent builds an event for action concerning userID, stamped with the
// request metadata ctx carries. actorID is recorded only when it differs
// from userID.
func NewEvent(ctx context.Context, action AuditEvent, userID, actorID id.UserID) Event {
	e := Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		UserID:    userID,
		Action:    string(action),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	}
	if !actorID.IsNil() && actorID != userID {
		e.ActorID = actorID.String()
	}
	return e
}
