package testutil

import (
	"context"
	"net/http"
	"time"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

// WithActor attaches an authenticated actor to the request, simulating the
// auth middleware.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRole is WithActor for a fresh user of the given role. It returns the
// generated user ID alongside the request.
func WithRole(req *http.Request, role id.Role) (*http.Request, id.UserID) {
	userID := id.NewUserID()
	return WithActor(req, id.Actor{UserID: userID, Role: role}), userID
}

// Actor builds an actor for service tests.
func Actor(role id.Role) id.Actor {
	return id.Actor{UserID: id.NewUserID(), Role: role}
}

// FixedTimeContext returns a context whose request time is pinned.
func FixedTimeContext(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
