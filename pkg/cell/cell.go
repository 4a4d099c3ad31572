package cell

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"weak"

	"github.com/mesh-intelligence/kvsync/pkg/runloop"
	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// Cell errors.
var (
	ErrClosed   = errors.New("cell is closed")
	ErrNilStore = errors.New("cell store must not be nil")
)

// Cell is a typed value backed by one key of an external store.
//
// Invariant: the cached value equals the last value either set through the
// cell or read from the store for its key; when the store has no compatible
// entry it equals the default.
type Cell[T any] struct {
	store        types.Store
	key          string
	defaultValue T
	dispatcher   runloop.Dispatcher
	logger       *slog.Logger
	parent       weak.Pointer[Publisher]

	mu        sync.RWMutex
	value     T
	writes    uint64 // bumped by every Set; a refresh that spans one is dropped
	observers []observer[T]
	nextID    uint64
	closed    bool
	cancel    func()

	refreshMu sync.Mutex
}

type observer[T any] struct {
	id uint64
	fn func(T)
}

// New creates a cell for key, reading its initial value from store and
// subscribing to the store's external changes. A missing or type-mismatched
// stored value is not an error: the cell starts at defaultValue.
func New[T any](store types.Store, key string, defaultValue T, opts ...Option) (*Cell[T], error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := types.ValidateKey(key); err != nil {
		return nil, err
	}

	cfg := applyOptions(opts)
	c := &Cell[T]{
		store:        store,
		key:          key,
		defaultValue: defaultValue,
		dispatcher:   cfg.dispatcher,
		logger:       cfg.logger.With("key", key),
	}
	if cfg.parent != nil {
		c.parent = weak.Make(cfg.parent)
	}

	c.value = c.load()
	c.cancel = store.Subscribe(c.HandleChange)
	return c, nil
}

// Key returns the store key the cell is bound to.
func (c *Cell[T]) Key() string {
	return c.key
}

// Default returns the fallback value.
func (c *Cell[T]) Default() T {
	return c.defaultValue
}

// Get returns the cached value. It never touches the store.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set writes v to the store, then updates the cache, then signals
// observers. If the store rejects the write, the cache is left unchanged
// and the store's error is returned.
func (c *Cell[T]) Set(v T) error {
	if c.isClosed() {
		return ErrClosed
	}

	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("cell %q: %w", c.key, err)
	}
	if err := c.store.Set(c.key, raw); err != nil {
		return fmt.Errorf("cell %q: %w", c.key, err)
	}

	c.mu.Lock()
	c.writes++
	c.value = v
	c.mu.Unlock()

	c.signal(v)
	return nil
}

// Binding returns a read/write handle over the cell.
func (c *Cell[T]) Binding() Binding[T] {
	return NewBinding(c.Get, c.Set)
}

// Observe registers fn to be called with the new value after every change.
// The returned cancel func is idempotent.
func (c *Cell[T]) Observe(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, observer[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { c.removeObserver(id) })
	}
}

// HandleChange is the cell's store subscription. Changes that do not name
// the cell's key are ignored. Otherwise the refresh is dispatched onto the
// cell's dispatcher, where the key is re-read (falling back to the default)
// and observers are signalled once.
//
// It is exported for hosts that forward store notifications from their own
// event bus instead of relying on Store.Subscribe.
func (c *Cell[T]) HandleChange(change types.Change) {
	if !change.Contains(c.key) {
		return
	}
	if !c.dispatcher.Dispatch(c.refresh) {
		c.logger.Debug("dispatcher rejected external change", "reason", change.Reason.String())
	}
}

// Close unsubscribes from the store and drops all observers. Idempotent.
func (c *Cell[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.cancel = nil
	c.observers = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// refresh re-reads the key. Refreshes load one at a time, and a refresh
// whose read overlaps a Set is discarded.
func (c *Cell[T]) refresh() {
	c.refreshMu.Lock()

	c.mu.RLock()
	closed, writes := c.closed, c.writes
	c.mu.RUnlock()
	if closed {
		c.refreshMu.Unlock()
		return
	}

	v := c.load()

	c.mu.Lock()
	stale := c.writes != writes
	if !stale {
		c.value = v
	}
	c.mu.Unlock()
	c.refreshMu.Unlock()

	if stale {
		c.logger.Debug("discarding refresh overtaken by a local write")
		return
	}
	c.signal(v)
}

// load reads the key from the store, returning the default when the entry
// is missing, unreadable, or of an incompatible type.
func (c *Cell[T]) load() T {
	raw, err := c.store.Get(c.key)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			c.logger.Warn("store read failed, using default", "error", err)
		}
		return c.defaultValue
	}

	v, ok := decode[T](raw)
	if !ok {
		c.logger.Debug("stored value has incompatible type, using default", "stored_type", fmt.Sprintf("%T", raw))
		return c.defaultValue
	}
	return v
}

func (c *Cell[T]) signal(v T) {
	c.mu.RLock()
	observers := slices.Clone(c.observers)
	c.mu.RUnlock()

	for _, o := range observers {
		o.fn(v)
	}
	if p := c.parent.Value(); p != nil {
		p.Send()
	}
}

func (c *Cell[T]) removeObserver(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = slices.DeleteFunc(c.observers, func(o observer[T]) bool {
		return o.id == id
	})
}

func (c *Cell[T]) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
