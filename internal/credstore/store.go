// Package credstore holds the decrypted credential collection of an unlocked
// vault and notifies observers of every change.
package credstore

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/model"
)

// Snapshot is an immutable view of the store. Entries is a private copy.
type Snapshot struct {
	Entries   []model.PasswordEntry
	IsLoading bool
	Err       error
}

// Observer receives snapshots. Observers run synchronously, in change order,
// and must not mutate the store.
type Observer func(Snapshot)

// Store is an ordered, in-memory collection of password entries.
// All mutations are local; persistence is the sync engine's job.
type Store struct {
	mu    sync.RWMutex
	state Snapshot

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObs   uint64

	notifyMu sync.Mutex

	now   func() time.Time
	newID func() (string, error)
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newID = gen }
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:     initialState(),
		observers: map[uint64]Observer{},
		now:       time.Now,
		newID:     randomID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func initialState() Snapshot {
	return Snapshot{Entries: []model.PasswordEntry{}}
}

func randomID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Subscribe registers fn, calls it with the current snapshot and returns an unsubscribe func.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	s.notifyMu.Lock()
	fn(s.Snapshot())
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Snapshot {
	out := s.state
	out.Entries = append(make([]model.PasswordEntry, 0, len(s.state.Entries)), s.state.Entries...)
	return out
}

// Entries returns a copy of the ordered collection.
func (s *Store) Entries() []model.PasswordEntry {
	return s.Snapshot().Entries
}

// Get returns the entry with id.
func (s *Store) Get(id string) (model.PasswordEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.state.Entries[i], true
	}
	return model.PasswordEntry{}, false
}

// Add assigns a fresh id and timestamps and appends the entry.
func (s *Store) Add(d model.EntryDraft) (model.PasswordEntry, error) {
	var (
		e   model.PasswordEntry
		err error
	)
	s.mutate(func(st *Snapshot) bool {
		id, genErr := s.newID()
		for genErr == nil && s.indexLocked(id) >= 0 {
			id, genErr = s.newID()
		}
		if genErr != nil {
			err = genErr
			return false
		}
		now := s.now()
		e = model.PasswordEntry{
			ID:        id,
			Name:      d.Name,
			Username:  d.Username,
			Password:  d.Password,
			URL:       d.URL,
			Notes:     d.Notes,
			Category:  d.Category,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.Entries = append(st.Entries, e)
		return true
	})
	return e, err
}

// Update merges patch into the entry with id and bumps its updatedAt.
// Returns errs.ErrNotFound when id is absent.
func (s *Store) Update(id string, patch model.EntryPatch) (model.PasswordEntry, error) {
	var e model.PasswordEntry
	found := s.mutate(func(st *Snapshot) bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		e = st.Entries[i]
		patch.Apply(&e)
		now := s.now()
		if !now.After(e.UpdatedAt) {
			now = e.UpdatedAt.Add(time.Nanosecond)
		}
		e.UpdatedAt = now
		st.Entries[i] = e
		return true
	})
	if !found {
		return model.PasswordEntry{}, errs.ErrNotFound
	}
	return e, nil
}

// Delete removes the entry with id. Reports whether something was removed.
func (s *Store) Delete(id string) bool {
	return s.mutate(func(st *Snapshot) bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		entries := make([]model.PasswordEntry, 0, len(st.Entries)-1)
		entries = append(entries, st.Entries[:i]...)
		st.Entries = append(entries, st.Entries[i+1:]...)
		return true
	})
}

// Reset returns the store to its initial empty state.
func (s *Store) Reset() {
	s.set(func(st *Snapshot) { *st = initialState() })
}

// StartLoading marks a sync operation in flight and clears the error.
// The returned func restores the status as it was before the call.
func (s *Store) StartLoading() (restore func()) {
	var prevLoading bool
	var prevErr error
	s.set(func(st *Snapshot) {
		prevLoading, prevErr = st.IsLoading, st.Err
		st.IsLoading = true
		st.Err = nil
	})
	return func() {
		s.set(func(st *Snapshot) {
			st.IsLoading = prevLoading
			st.Err = prevErr
		})
	}
}

// Replace swaps the whole collection in one step and ends loading.
func (s *Store) Replace(entries []model.PasswordEntry) {
	cp := append(make([]model.PasswordEntry, 0, len(entries)), entries...)
	s.set(func(st *Snapshot) {
		st.Entries = cp
		st.IsLoading = false
		st.Err = nil
	})
}

// Done ends loading without touching entries.
func (s *Store) Done() {
	s.set(func(st *Snapshot) { st.IsLoading = false })
}

// Fail records err and ends loading; entries are kept.
func (s *Store) Fail(err error) {
	s.set(func(st *Snapshot) {
		st.IsLoading = false
		st.Err = err
	})
}

// FailClosed records err and drops all entries.
func (s *Store) FailClosed(err error) {
	s.set(func(st *Snapshot) {
		st.Entries = []model.PasswordEntry{}
		st.IsLoading = false
		st.Err = err
	})
}

func (s *Store) set(fn func(*Snapshot)) {
	s.mutate(func(st *Snapshot) bool {
		fn(st)
		return true
	})
}

// mutate applies fn under the state lock and, if fn reports a change,
// notifies observers. notifyMu is held across both so observers see
// changes in the order they were made.
func (s *Store) mutate(fn func(*Snapshot) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.state)
	snap := s.copyLocked()
	s.mu.Unlock()

	if changed {
		s.deliver(snap)
	}
	return changed
}

func (s *Store) indexLocked(id string) int {
	for i := range s.state.Entries {
		if s.state.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) deliver(snap Snapshot) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	for _, o := range obs {
		o(snap)
	}
}
