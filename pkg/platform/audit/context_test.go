package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")

	owner := id.NewUserID()
	officer := id.NewUserID()

	e := NewEvent(ctx, EventParcelVerified, owner, officer)
	assert.Equal(t, CategoryCompliance, e.Category)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, owner, e.UserID)
	assert.Equal(t, officer.String(), e.ActorID)
	assert.Equal(t, "parcel_verified", e.Action)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "10.0.0.1", e.ClientIP)
	assert.Equal(t, "curl/8.0", e.UserAgent)

	self := NewEvent(ctx, EventPasswordChanged, owner, owner)
	assert.Empty(t, self.ActorID, "actor omitted when acting on self")
}
