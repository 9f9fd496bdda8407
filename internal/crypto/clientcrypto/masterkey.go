package clientcrypto

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrKeyDestroyed is returned when a key is used after the session dropped it.
var ErrKeyDestroyed = errors.New("master key destroyed")

// MasterKey holds vault key material in a locked, read-only memguard buffer.
// It is never serialized. Readers share it; Destroy waits for them and wipes it.
type MasterKey struct {
	mu  sync.RWMutex
	buf *memguard.LockedBuffer
}

// NewMasterKey moves raw into protected memory. raw is wiped.
func NewMasterKey(raw []byte) (*MasterKey, error) {
	if len(raw) != KeyLen {
		memguard.WipeBytes(raw)
		return nil, ErrWeakParams
	}
	buf := memguard.NewBufferFromBytes(raw)
	buf.Freeze()
	return &MasterKey{buf: buf}, nil
}

// use runs fn with the key bytes under a read lock. fn must not retain the slice.
func (k *MasterKey) use(fn func(key []byte) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.buf == nil || !k.buf.IsAlive() {
		return ErrKeyDestroyed
	}
	return fn(k.buf.Bytes())
}

// Alive reports whether the key can still be used.
func (k *MasterKey) Alive() bool {
	if k == nil {
		return false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.buf != nil && k.buf.IsAlive()
}

// Equal compares two keys in constant time.
func (k *MasterKey) Equal(other *MasterKey) bool {
	if k == other {
		return k.Alive()
	}
	var same bool
	_ = k.use(func(a []byte) error {
		return other.use(func(b []byte) error {
			same = subtle.ConstantTimeCompare(a, b) == 1
			return nil
		})
	})
	return same
}

// Destroy wipes the key. Safe to call more than once.
func (k *MasterKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.buf != nil {
		k.buf.Destroy()
		k.buf = nil
	}
}
