// Package result provides the tagged union returned by every dealer
// operation that can fail for an expected reason, together with the shared
// error taxonomy.
//
// A Result is either Ok(value) or Err(error). Callers check OK() before
// reading Value(); the error path carries a Kind so tests and the dealer can
// branch on the shape of a failure rather than on message text.
package result

// Result is Ok{value} | Err{error}.
type Result[T any] struct {
	ok    bool
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{ok: true, value: v}
}

// Err wraps a failure. A nil err is replaced with an UNKNOWN error so that
// an Err result never reports a nil error.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = New(KindUnknown, "result.Err", nil)
	}
	return Result[T]{err: err}
}

// ErrKind is shorthand for Err(New(kind, op, err)).
func ErrKind[T any](kind Kind, op string, err error) Result[T] {
	return Err[T](New(kind, op, err))
}

// From converts a (value, error) pair into a Result.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// OK reports whether the result holds a value.
func (r Result[T]) OK() bool { return r.ok }

// Value returns the wrapped value. It is the zero value for Err results.
func (r Result[T]) Value() T { return r.value }

// Error returns the wrapped error, nil for Ok results.
func (r Result[T]) Error() error { return r.err }

// Kind returns the error kind of an Err result, or "" for Ok results.
func (r Result[T]) Kind() Kind {
	if r.ok {
		return ""
	}
	return KindOf(r.err)
}

// Unwrap returns the value and error as a conventional Go pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// Map applies fn to the value of an Ok result and propagates Err results
// unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return Ok(fn(r.value))
}
