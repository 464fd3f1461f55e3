package expression

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperatorName is returned when registering an operator whose name does not start with "$".
	ErrInvalidOperatorName = errors.New("invalid operator name")
	// ErrUnknownOperator is returned for a "$"-prefixed key that is neither registered nor built in.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrOperatorArgument is returned when a built-in operator is called with the wrong arity or type.
	ErrOperatorArgument = errors.New("invalid operator argument")
	// ErrUnmarshal is returned when an expression cannot be decoded.
	ErrUnmarshal = errors.New("JSON parsing error")
)

func NewInvalidOperatorNameError(name string) error {
	return fmt.Errorf("%w %q: custom operator names must start with '$'", ErrInvalidOperatorName, name)
}

func NewUnknownOperatorError(e *Expression) error {
	return fmt.Errorf("%w %q in expression %s", ErrUnknownOperator, e.Op, e.String())
}

func NewOperatorArgumentError(e *Expression, err error) error {
	return fmt.Errorf("%w: failed to evaluate %s expression %s: %s", ErrOperatorArgument, e.Op,
		e.String(), err.Error())
}

func NewUnmarshalError(kind, content string) error {
	return fmt.Errorf("%w in %s at %q", ErrUnmarshal, kind, content)
}
