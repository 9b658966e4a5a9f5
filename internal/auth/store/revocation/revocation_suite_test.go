package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landregistry/pkg/platform/sentinel"
)

type revocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// TRLSuite runs against every backend. Expiry is covered per backend since
// each has its own notion of time.
type TRLSuite struct {
	suite.Suite
	newTRL func() revocationList
	trl    revocationList
}

func (s *TRLSuite) SetupTest() {
	s.trl = s.newTRL()
}

func (s *TRLSuite) TestRevokeAndCheck() {
	ctx := context.Background()

	revoked, err := s.trl.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err = s.trl.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.trl.IsTokenRevoked(ctx, "jti-2")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *TRLSuite) TestRevokeIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-1", time.Minute))
	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err := s.trl.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *TRLSuite) TestRejectsNonPositiveTTL() {
	err := s.trl.RevokeToken(context.Background(), "jti-1", 0)
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrInvalidState))
}

func (s *TRLSuite) TestEmptyJTIIsIgnored() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeToken(ctx, "", time.Minute))
	revoked, err := s.trl.IsTokenRevoked(ctx, "")
	s.Require().NoError(err)
	s.False(revoked)
}

func TestInMemoryTRL(t *testing.T) {
	suite.Run(t, &TRLSuite{newTRL: func() revocationList { return NewInMemoryTRL() }})
}

func TestInMemoryTRL_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := trl.RevokeToken(ctx, "jti-1", time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if revoked, _ := trl.IsTokenRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("expected token to be revoked before ttl elapses")
	}
	now = now.Add(time.Minute)
	if revoked, _ := trl.IsTokenRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected revocation to lapse after ttl")
	}
}

func TestRemainingTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		expiresAt time.Time
		want      time.Duration
	}{
		"zero expiry":    {time.Time{}, 0},
		"already past":   {now.Add(-time.Second), 0},
		"exactly now":    {now, 0},
		"whole seconds":  {now.Add(10 * time.Minute), 10*time.Minute + time.Second},
		"rounded upward": {now.Add(1500 * time.Millisecond), 2 * time.Second},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := RemainingTTL(tc.expiresAt, now); got != tc.want {
				t.Fatalf("RemainingTTL = %v, want %v", got, tc.want)
			}
		})
	}
}
