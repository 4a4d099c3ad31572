// Package cell implements the synced value cell: a typed value mirrored
// between an in-memory cache and an external key-value store.
//
// A Cell reads its key once on creation, falling back to a default when the
// store has no entry or an entry of an incompatible type. Set writes through
// to the store, updates the cache, and signals observers. When the store
// reports that the key changed outside this process, the cell re-reads it on
// its dispatcher and signals observers once.
//
//	loop := runloop.New()
//	theme, err := cell.New(store, "theme", "light", cell.WithDispatcher(loop))
//	if err != nil {
//	    return err
//	}
//	defer theme.Close()
//	cancel := theme.Observe(func(v string) { render(v) })
//	defer cancel()
//	_ = theme.Set("dark")
//
// Signals are delivered after the cache is updated: observers registered
// with Observe run first, then the parent Publisher if one was attached with
// WithParent.
package cell
