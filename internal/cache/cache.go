// Package cache stores prior verdicts keyed by request fingerprint. Cache
// failures are non-fatal by contract: reads degrade to a miss and writes are
// dropped; the Judge never fails because the cache misbehaves.
package cache

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/decision"
)

const keyPrefix = "verdict:"

// VerdictCache is the keyed store from fingerprint to serialized decision.
type VerdictCache interface {
	// Get returns the cached decision and whether it was present.
	Get(ctx context.Context, fingerprint string) (decision.Decision, bool, error)
	// Put stores the decision under the fingerprint for ttl.
	Put(ctx context.Context, fingerprint string, d decision.Decision, ttl time.Duration) error
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	Close() error
}

func verdictKey(fingerprint string) string {
	return keyPrefix + fingerprint
}
