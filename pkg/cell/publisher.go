package cell

import (
	"slices"
	"sync"
)

// Publisher is the change signal of an object that owns several cells.
// Cells attached with WithParent call Send after every change, so a single
// subscription observes all of them.
type Publisher struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
}

type subscription struct {
	id uint64
	fn func()
}

// NewPublisher returns a Publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers fn to be called on every Send. The returned cancel
// func is idempotent.
func (p *Publisher) Subscribe(fn func()) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.subs = slices.DeleteFunc(p.subs, func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

// Send calls every subscriber in subscription order.
func (p *Publisher) Send() {
	p.mu.Lock()
	subs := slices.Clone(p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}
