package revocation

import (
	"context"
	"sync"
	"time"

	"landregistry/internal/platform/metrics"
)

// InMemoryTRL keeps revoked JTIs in process memory. It is the fallback when
// Redis is not configured and only suits single-instance deployments.
type InMemoryTRL struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   Clock
	metrics *metrics.Metrics
}

type InMemoryTRLOption func(*InMemoryTRL)

func WithClock(clock Clock) InMemoryTRLOption {
	return func(trl *InMemoryTRL) {
		if clock != nil {
			trl.clock = clock
		}
	}
}

func WithMemoryMetrics(m *metrics.Metrics) InMemoryTRLOption {
	return func(trl *InMemoryTRL) {
		trl.metrics = m
	}
}

func NewInMemoryTRL(opts ...InMemoryTRLOption) *InMemoryTRL {
	trl := &InMemoryTRL{
		revoked: make(map[string]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken records jti as revoked for ttl.
func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[jti] = t.clock().Add(ttl)
	return nil
}

// IsTokenRevoked reports whether jti is revoked and the entry is still live.
func (t *InMemoryTRL) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	defer t.metrics.ObserveRevocationCheck("memory", time.Now())
	if jti == "" {
		return false, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.revoked[jti]
	if !ok {
		return false, nil
	}
	if t.clock().After(expiresAt) {
		delete(t.revoked, jti)
		return false, nil
	}
	return true, nil
}
