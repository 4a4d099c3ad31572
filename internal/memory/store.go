// Package memory implements an in-process key-value store.
//
// All handles created from one New call share a single key space. A write
// through one handle is an external change to every other handle, so peers
// stand in for other devices or processes in tests and examples.
package memory

import (
	"maps"
	"slices"
	"sync"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

var _ types.Backend = (*Store)(nil)

// space is the shared key space behind a set of peer handles.
type space struct {
	mu      sync.RWMutex
	records map[string]any
	maxKeys int
	handles []*Store
}

// Store is one handle onto a shared in-memory key space.
type Store struct {
	space *space

	mu       sync.Mutex
	attached bool
	subs     []subscriber
	nextID   uint64
}

type subscriber struct {
	id uint64
	fn func(types.Change)
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the process-wide store. Handles from NewSharedBackend
// share its key space.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = New()
	})
	return defaultStore
}

// New creates an attached store over a fresh, empty key space with no key
// quota.
func New() *Store {
	s := &Store{space: &space{records: map[string]any{}}, attached: true}
	s.space.handles = append(s.space.handles, s)
	return s
}

// NewBackend creates a detached store. Call Attach before use.
func NewBackend() *Store {
	s := New()
	s.attached = false
	return s
}

// NewSharedBackend creates a detached handle onto the process-wide key
// space. Call Attach before use.
func NewSharedBackend() *Store {
	return &Store{space: Default().space}
}

// Peer returns a new attached handle sharing this store's key space.
func (s *Store) Peer() *Store {
	p := &Store{space: s.space, attached: true}
	s.space.mu.Lock()
	s.space.handles = append(s.space.handles, p)
	s.space.mu.Unlock()
	return p
}

// Attach applies config to the key space and opens the handle.
func (s *Store) Attach(config types.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}

	s.space.mu.Lock()
	s.space.maxKeys = config.MaxKeys
	if !slices.Contains(s.space.handles, s) {
		s.space.handles = append(s.space.handles, s)
	}
	s.space.mu.Unlock()

	s.attached = true
	return nil
}

// Detach closes the handle and drops its subscribers. The key space and
// its other handles are unaffected. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.subs = nil

	s.space.mu.Lock()
	s.space.handles = slices.DeleteFunc(s.space.handles, func(h *Store) bool { return h == s })
	s.space.mu.Unlock()
	return nil
}

// Get returns a copy of the value for key or types.ErrNotFound.
func (s *Store) Get(key string) (any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.space.mu.RLock()
	v, ok := s.space.records[key]
	s.space.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	return types.CloneValue(v), nil
}

// Set normalizes value and stores it under key. Peers are notified with
// types.ReasonServerChange.
func (s *Store) Set(key string, value any) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := types.ValidateKey(key); err != nil {
		return err
	}
	v, err := types.NormalizeValue(value)
	if err != nil {
		return err
	}

	s.space.mu.Lock()
	_, exists := s.space.records[key]
	if !exists && s.space.maxKeys > 0 && len(s.space.records) >= s.space.maxKeys {
		s.space.mu.Unlock()
		s.deliver(types.NewChange(types.ReasonQuotaViolationChange, key))
		return types.ErrQuotaExceeded
	}
	s.space.records[key] = v
	s.space.mu.Unlock()

	s.notifyPeers(types.NewChange(types.ReasonServerChange, key))
	return nil
}

// Remove deletes key. Peers are notified with types.ReasonServerChange.
func (s *Store) Remove(key string) error {
	if err := s.check(); err != nil {
		return err
	}

	s.space.mu.Lock()
	if _, ok := s.space.records[key]; !ok {
		s.space.mu.Unlock()
		return types.ErrNotFound
	}
	delete(s.space.records, key)
	s.space.mu.Unlock()

	s.notifyPeers(types.NewChange(types.ReasonServerChange, key))
	return nil
}

// Keys returns all keys, sorted.
func (s *Store) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.space.mu.RLock()
	defer s.space.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.space.records)), nil
}

// Snapshot returns a deep copy of every entry.
func (s *Store) Snapshot() (map[string]any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.space.mu.RLock()
	defer s.space.mu.RUnlock()
	out := make(map[string]any, len(s.space.records))
	for k, v := range s.space.records {
		out[k] = types.CloneValue(v)
	}
	return out, nil
}

// Subscribe registers fn for changes made through other handles or
// ApplyExternal.
func (s *Store) Subscribe(fn func(types.Change)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool {
				return sub.id == id
			})
		})
	}
}

// Synchronize is a no-op: peers deliver changes as they happen.
func (s *Store) Synchronize() error {
	return s.check()
}

// ApplyExternal writes values and removes keys as a writer outside every
// handle, then notifies all handles with reason. Values are normalized;
// removing a missing key is not an error.
func (s *Store) ApplyExternal(reason types.ChangeReason, values map[string]any, removed ...string) error {
	normalized := make(map[string]any, len(values))
	for k, v := range values {
		if err := types.ValidateKey(k); err != nil {
			return err
		}
		n, err := types.NormalizeValue(v)
		if err != nil {
			return err
		}
		normalized[k] = n
	}

	keys := make([]string, 0, len(values)+len(removed))
	s.space.mu.Lock()
	for k, v := range normalized {
		s.space.records[k] = v
		keys = append(keys, k)
	}
	for _, k := range removed {
		delete(s.space.records, k)
		keys = append(keys, k)
	}
	handles := slices.Clone(s.space.handles)
	s.space.mu.Unlock()

	change := types.NewChange(reason, keys...)
	for _, h := range handles {
		h.deliver(change)
	}
	return nil
}

func (s *Store) notifyPeers(change types.Change) {
	s.space.mu.RLock()
	handles := slices.Clone(s.space.handles)
	s.space.mu.RUnlock()

	for _, h := range handles {
		if h == s {
			continue
		}
		h.deliver(change)
	}
}

func (s *Store) deliver(change types.Change) {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(change)
	}
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return types.ErrStoreDetached
	}
	return nil
}
