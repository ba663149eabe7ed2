package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrInvalidSession = errors.New("session needs both a token and a user")
)

// PersistenceError means the store could not write to storage. The in-memory
// session is left as it was before the call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist session: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
