// Package session tracks who is logged in and owns the vault master key.
//
// States move Unauthenticated -> Authenticated -> Unlocked. Lock drops back to
// Authenticated and Logout returns to Unauthenticated from anywhere. The key
// exists only while Unlocked and is destroyed on every transition out of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/lycheelock/lycheelock/internal/crypto"
	"github.com/lycheelock/lycheelock/internal/crypto/clientcrypto"
	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

// State is a session lifecycle state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Unlocked
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Identity is what a successful password login yields.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Salt     []byte // vault salt
}

// SecondFactorVerifier checks a TOTP code against a login challenge.
type SecondFactorVerifier interface {
	VerifySecondFactor(ctx context.Context, challenge, code, source string) (model.User, error)
}

// Credentials is what the sync engine needs to talk to the vault.
type Credentials struct {
	UserID uuid.UUID
	Key    *clientcrypto.MasterKey
}

// ErrInvalidIdentity is returned by Authenticate for an incomplete identity.
var ErrInvalidIdentity = errors.New("invalid identity")

// Session is safe for concurrent use.
type Session struct {
	verifier SecondFactorVerifier
	kdf      clientcrypto.KDFParams
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped on every transition
	ident     Identity
	challenge string
	key       *clientcrypto.MasterKey

	obsMu     sync.Mutex
	observers map[uint64]func(State)
	nextObs   uint64
	notifyMu  sync.Mutex
}

// New returns an Unauthenticated session.
func New(verifier SecondFactorVerifier, kdf clientcrypto.KDFParams, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		verifier:  verifier,
		kdf:       kdf,
		log:       log,
		observers: map[uint64]func(State){},
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the logged-in identity; ok is false when Unauthenticated.
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unauthenticated {
		return Identity{}, false
	}
	id := s.ident
	id.Salt = append([]byte(nil), s.ident.Salt...)
	return id, true
}

// Authenticate records a password-verified identity and its pending
// second-factor challenge. Only allowed from Unauthenticated.
func (s *Session) Authenticate(ident Identity, challenge string) error {
	if ident.UserID == uuid.Nil || len(ident.Salt) < clientcrypto.SaltLen || challenge == "" {
		return ErrInvalidIdentity
	}
	return s.transition(func() error {
		if s.state != Unauthenticated {
			return errs.ErrInvalidState
		}
		s.ident = ident
		s.ident.Salt = append([]byte(nil), ident.Salt...)
		s.challenge = challenge
		s.state = Authenticated
		return nil
	})
}

// Unlock verifies the TOTP code, checks password against the account the code
// was verified for and derives the master key from it. Derivation runs outside
// the lock; if the session moved on meanwhile the new key is destroyed and
// ErrNotAuthenticated is returned.
func (s *Session) Unlock(ctx context.Context, password, code, source string) error {
	if password == "" {
		return clientcrypto.ErrEmptyPassword
	}
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return errs.ErrInvalidState
	}
	gen := s.gen
	ident := s.ident
	salt := append([]byte(nil), s.ident.Salt...)
	challenge := s.challenge
	s.mu.Unlock()

	u, err := s.verifier.VerifySecondFactor(ctx, challenge, code, source)
	if err != nil {
		return err
	}
	if u.ID != ident.UserID {
		return errs.ErrUnauthorized
	}
	// a key derived from any other password would open nothing
	if !crypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		return errs.ErrUnauthorized
	}

	key, err := clientcrypto.DeriveKey(ctx, password, salt, s.kdf)
	if err != nil {
		return err
	}

	err = s.transition(func() error {
		if s.gen != gen || s.state != Authenticated {
			return errs.ErrNotAuthenticated
		}
		s.key = key
		s.state = Unlocked
		return nil
	})
	if err != nil {
		key.Destroy()
		return err
	}
	s.log.Info("vault unlocked", zap.String("user_id", ident.UserID.String()))
	return nil
}

// Lock destroys the key and returns to Authenticated. No-op unless Unlocked.
func (s *Session) Lock() {
	_ = s.transition(func() error {
		if s.state != Unlocked {
			return errNoop
		}
		s.dropKeyLocked()
		s.state = Authenticated
		return nil
	})
}

// Logout destroys the key, forgets the identity and returns to Unauthenticated.
func (s *Session) Logout() {
	_ = s.transition(func() error {
		if s.state == Unauthenticated {
			return errNoop
		}
		s.dropKeyLocked()
		s.ident = Identity{}
		s.challenge = ""
		s.state = Unauthenticated
		return nil
	})
}

// Credentials returns the user id and live key, or ErrNotAuthenticated
// unless the session is Unlocked.
func (s *Session) Credentials() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked || !s.key.Alive() {
		return Credentials{}, errs.ErrNotAuthenticated
	}
	return Credentials{UserID: s.ident.UserID, Key: s.key}, nil
}

// Subscribe registers fn for state transitions and returns an unsubscribe func.
// fn is not called with the current state.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

var errNoop = errors.New("noop")

// transition applies fn under the state lock and notifies observers of the
// resulting state if fn succeeded. Notifications keep transition order.
func (s *Session) transition(fn func() error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		if err == errNoop {
			return nil
		}
		return err
	}
	s.gen++
	st := s.state
	s.mu.Unlock()

	s.obsMu.Lock()
	obs := make([]func(State), 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	for _, o := range obs {
		o(st)
	}
	return nil
}

// dropKeyLocked waits for in-flight key users, then wipes the key.
func (s *Session) dropKeyLocked() {
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
}
