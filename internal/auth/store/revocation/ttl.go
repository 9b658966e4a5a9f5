package revocation

import (
	"fmt"
	"time"

	"landregistry/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// RemainingTTL is how long a revocation for a token expiring at expiresAt
// must be kept. Tokens already past expiry need no entry and yield 0.
func RemainingTTL(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() || !expiresAt.After(now) {
		return 0
	}
	// Round up so the entry never lapses before the token does.
	return expiresAt.Sub(now).Truncate(time.Second) + time.Second
}
