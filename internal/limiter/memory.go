package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory is an in-process limiter for single-user deployments (bolt backend).
// Failures drain a token bucket of maxFails tokens refilled over window;
// an empty bucket blocks the key for blockFor.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memEntry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type memEntry struct {
	bucket       *rate.Limiter
	blockedUntil time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	if maxFails < 1 {
		maxFails = 1
	}
	return &Memory{
		entries:  map[string]*memEntry{},
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func memKey(subject string, sourceHash []byte) string {
	return subject + "|" + hex.EncodeToString(sourceHash)
}

// Allow reports whether the key is outside a lockout.
func (m *Memory) Allow(_ context.Context, subject string, sourceHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memKey(subject, sourceHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the key.
func (m *Memory) Success(_ context.Context, subject string, sourceHash []byte) error {
	m.mu.Lock()
	delete(m.entries, memKey(subject, sourceHash))
	m.mu.Unlock()
	return nil
}

// Failure spends one token and blocks when the bucket runs dry.
func (m *Memory) Failure(_ context.Context, subject string, sourceHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := memKey(subject, sourceHash)
	e, ok := m.entries[k]
	if !ok {
		every := m.window / time.Duration(m.maxFails)
		e = &memEntry{bucket: rate.NewLimiter(rate.Every(every), m.maxFails)}
		m.entries[k] = e
	}
	e.bucket.AllowN(now, 1)
	if e.bucket.TokensAt(now) >= 1 {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(m.blockFor)
	return true, m.blockFor, nil
}
