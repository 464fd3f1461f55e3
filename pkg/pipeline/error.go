package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStage is returned for a stage that is not a single-key mapping from a
	// "$"-prefixed operator name to its argument.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrUnsupportedCustomStage is returned when a stage other than $project or $addFields has
	// to be evaluated locally.
	ErrUnsupportedCustomStage = errors.New("unsupported custom stage")
)

func NewInvalidStageError(content string, reason string) error {
	return fmt.Errorf("%w %s: %s", ErrInvalidStage, content, reason)
}

func NewUnsupportedCustomStageError(op string) error {
	return fmt.Errorf("%w %q: only $project and $addFields stages may contain custom operators",
		ErrUnsupportedCustomStage, op)
}
