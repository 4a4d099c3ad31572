package cell

// Binding is a read/write handle over a value owned elsewhere. Reading it
// returns the owner's current value; writing it forwards to the owner.
type Binding[T any] struct {
	get func() T
	set func(T) error
}

// NewBinding builds a Binding from a getter and a setter.
func NewBinding[T any](get func() T, set func(T) error) Binding[T] {
	return Binding[T]{get: get, set: set}
}

// Constant returns a Binding that always reads v and ignores writes.
func Constant[T any](v T) Binding[T] {
	return Binding[T]{
		get: func() T { return v },
		set: func(T) error { return nil },
	}
}

// Get returns the current value. A zero Binding returns the zero value.
func (b Binding[T]) Get() T {
	if b.get == nil {
		var zero T
		return zero
	}
	return b.get()
}

// Set writes v through to the owner.
func (b Binding[T]) Set(v T) error {
	if b.set == nil {
		return nil
	}
	return b.set(v)
}

// Project derives a Binding to a part of b's value. get extracts the part;
// set returns a copy of the whole with the part replaced, which is then
// written through b.
func Project[T, U any](b Binding[T], get func(T) U, set func(T, U) T) Binding[U] {
	return Binding[U]{
		get: func() U { return get(b.Get()) },
		set: func(u U) error { return b.Set(set(b.Get(), u)) },
	}
}
