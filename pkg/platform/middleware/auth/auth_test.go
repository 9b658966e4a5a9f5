package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	"landregistry/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsTokenRevoked(context.Context, string) (bool, error) { return s.revoked, s.err }

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func run(mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, id.Actor) {
	var seen id.Actor
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/parcels", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func TestAuthenticate(t *testing.T) {
	userID := id.NewUserID()
	valid := &JWTClaims{UserID: userID.String(), Role: "LAND_OFFICER", JTI: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}

	t.Run("anonymous passes through", func(t *testing.T) {
		rr, actor := run(Authenticate(stubValidator{claims: valid}, nil, newLogger()), "")
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.False(t, actor.IsAuthenticated())
	})

	t.Run("valid token sets actor", func(t *testing.T) {
		rr, actor := run(Authenticate(stubValidator{claims: valid}, stubRevocation{}, newLogger()), "Bearer abc")
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, id.Actor{UserID: userID, Role: id.RoleLandOfficer}, actor)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		rr, _ := run(Authenticate(stubValidator{err: errors.New("bad")}, nil, newLogger()), "Bearer abc")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("non-bearer header rejected", func(t *testing.T) {
		rr, _ := run(Authenticate(stubValidator{claims: valid}, nil, newLogger()), "Basic Zm9vOmJhcg==")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		claims := *valid
		claims.Role = "ROOT"
		rr, _ := run(Authenticate(stubValidator{claims: &claims}, nil, newLogger()), "Bearer abc")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		rr, _ := run(Authenticate(stubValidator{claims: valid}, stubRevocation{revoked: true}, newLogger()), "Bearer abc")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("revocation backend failure is internal", func(t *testing.T) {
		rr, _ := run(Authenticate(stubValidator{claims: valid}, stubRevocation{err: errors.New("redis down")}, newLogger()), "Bearer abc")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
