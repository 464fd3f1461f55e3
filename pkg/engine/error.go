package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineExecution is returned when a call into the database fails. The error is not retried.
	ErrEngineExecution = errors.New("engine execution error")
	// ErrInvalidConfig is returned for an invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

func NewEngineExecutionError(op, collection string, err error) error {
	return fmt.Errorf("%w: %s on %q: %w", ErrEngineExecution, op, collection, err)
}

func NewInvalidConfigError(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, message)
}
