package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by every operation invoked after Close.
	ErrDisposed = errors.New("store is disposed")

	// ErrRoleNotFound is returned when a role-membership operation names
	// a role that does not exist. Membership operations never create
	// roles implicitly.
	ErrRoleNotFound = errors.New("role not found")
)

// ArgumentError reports a missing required argument. It is raised before
// any I/O is attempted.
type ArgumentError struct {
	Name string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s is required", e.Name)
}

// RequiredError builds an ArgumentError for the named argument.
func RequiredError(name string) error {
	return &ArgumentError{Name: name}
}

// IsArgumentError reports whether err is an ArgumentError.
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr)
}
