package store

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every public operation. Store driver
// errors are wrapped into ErrUpstream rather than leaked to callers.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid config")
	ErrInvalidState  = errors.New("invalid state")
	ErrAlreadyExists = errors.New("already exists")
	ErrUpstream      = errors.New("upstream failure")
)

// wrapDriver translates a database driver error into ErrUpstream
// while keeping the driver error in the chain for logs.
func wrapDriver(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, errors.Join(ErrUpstream, err))
}
