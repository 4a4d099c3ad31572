package cell

import (
	"log/slog"

	"github.com/mesh-intelligence/kvsync/pkg/runloop"
)

// Option configures a Cell.
type Option func(*config)

type config struct {
	dispatcher runloop.Dispatcher
	parent     *Publisher
	logger     *slog.Logger
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = runloop.Inline
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

// WithDispatcher sets the context external changes are delivered on.
// Defaults to runloop.Inline, which runs them on the store's goroutine.
func WithDispatcher(d runloop.Dispatcher) Option {
	return func(cfg *config) {
		cfg.dispatcher = d
	}
}

// WithParent attaches the publisher of an enclosing object. The cell keeps
// only a weak reference to it and signals it after its own observers.
func WithParent(p *Publisher) Option {
	return func(cfg *config) {
		cfg.parent = p
	}
}

// WithLogger sets the logger for default fallbacks and store read errors.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}
