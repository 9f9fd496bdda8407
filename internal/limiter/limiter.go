// Package limiter throttles password and second-factor attempts.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls attempts and temporary lockouts per (subject, source).
// Subject is a username or user id; source identifies where attempts come from.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, sourceHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, subject string, sourceHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, subject string, sourceHash []byte) (bool, time.Duration, error)
}

// HashSource returns a stable hash of a source string (IP, host, device) to
// avoid storing it raw.
func HashSource(source string) []byte {
	h := sha256.Sum256([]byte(source))
	return h[:]
}
