package shell

import (
	"errors"
	"fmt"
)

var (
	// ErrRedirection is matched by every RedirectionError.
	ErrRedirection = errors.New("cannot open redirection target")

	// ErrBadJobSpec is returned by Lookup for text that names no job form.
	ErrBadJobSpec = errors.New("bad job specification")
)

// RedirectionError reports a redirection target that could not be opened.
// No job is created when it is returned.
type RedirectionError struct {
	Path string
	Err  error
}

func (e *RedirectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *RedirectionError) Unwrap() []error {
	return []error{ErrRedirection, e.Err}
}
