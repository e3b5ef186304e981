package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrInit reports that the driver or one of its resources could not be
	// set up. The manager must be destroyed before Init is tried again.
	ErrInit = errors.New("backend initialization failed")

	// ErrInternal reports a driver failure while compiling, validating or
	// executing. Nothing is retried.
	ErrInternal = errors.New("backend internal error")
)

func initError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrInit, fmt.Sprintf(format, args...), err)
}

func internalError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, fmt.Sprintf(format, args...), err)
}
