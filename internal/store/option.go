package store

// Option is the result of a lookup that may legitimately find nothing.
// The zero value is Absent.
type Option[T any] struct {
	value   T
	present bool
}

// Some wraps a found value.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, present: true}
}

// None returns an absent result.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsPresent reports whether a value was found.
func (o Option[T]) IsPresent() bool {
	return o.present
}

// Get returns the value and whether it is present, in comma-ok form.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.present
}

// MustGet returns the value and panics when it is absent. Only use it after
// checking IsPresent.
func (o Option[T]) MustGet() T {
	if !o.present {
		// ALLOW-PANIC: programming error, absence must be checked first
		panic("store: MustGet called on an absent Option")
	}
	return o.value
}
