package propertyapi

import (
	"errors"
	"fmt"
)

// Result is the {data} | {error} shape for call sites that prefer values over
// error returns.
type Result[T any] struct {
	Data  T
	Error string
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.Error == ""
}

// WithErrorHandling runs call and folds any failure into Result.Error.
func WithErrorHandling[T any](call func() (T, error)) Result[T] {
	data, err := call()
	if err == nil {
		return Result[T]{Data: data}
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return Result[T]{Error: apiErr.Message}
	case err.Error() != "":
		return Result[T]{Error: err.Error()}
	default:
		return Result[T]{Error: fmt.Sprintf("an unexpected error occurred (%T)", err)}
	}
}
