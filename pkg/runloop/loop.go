// Package runloop provides the owning context that cells deliver change
// signals on. A Loop runs queued functions one at a time on a single
// goroutine, in the order they were dispatched.
//
// Thread-safety model:
//   - Dispatch: safe from any goroutine
//   - Run, Drain: call from exactly one goroutine, the owner
package runloop

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher schedules fn on the context it owns. Dispatch returns false if
// fn will never run.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(fn func()) bool

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) bool {
	if f == nil {
		return false
	}
	return f(fn)
}

// Inline runs every dispatched function immediately on the caller's
// goroutine. Suitable for tests and for programs whose store notifications
// already arrive on the owning goroutine.
var Inline Dispatcher = DispatcherFunc(func(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
})

// Loop is an unbounded FIFO of functions executed by Run or Drain.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1; closed by Stop
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an empty, open Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Dispatch appends fn to the queue. Returns false if fn is nil or the loop
// has been stopped.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)

	// Non-blocking: the size-1 buffer coalesces wakeups.
	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Run executes queued functions until ctx is cancelled or Stop is called.
// After Stop, Run executes whatever was queued before it and returns nil.
// On cancellation it stops the loop and returns ctx.Err() without running
// the remaining functions.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if fn, ok := l.next(); ok {
			l.exec(fn)
			continue
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.signal:
			if l.isClosed() && l.Len() == 0 {
				return nil
			}
		}
	}
}

// Drain runs every function queued at the time of the call, plus any they
// enqueue, on the caller's goroutine. It returns the number executed.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		l.exec(fn)
		n++
	}
}

// Stop closes the loop to new work and wakes Run. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	// Nil the slot so the closure can be collected.
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("run loop task panicked", "panic", r)
		}
	}()
	fn()
}
