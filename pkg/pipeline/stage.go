package pipeline

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/util"
)

// Stage is a single step of an aggregation pipeline: a single-key mapping from a "$"-prefixed
// operator name to its argument.
type Stage struct {
	// Op is the stage operator, e.g., "$match".
	Op string
	// Arg is the normalized stage argument.
	Arg any
	// raw is the stage as given by the caller, forwarded to the database verbatim.
	raw any
}

// NewStage creates a stage from a mapping. Accepts document.Document, bson.M and bson.D.
func NewStage(raw any) (Stage, error) {
	if s, ok := raw.(Stage); ok {
		return s, nil
	}

	doc, ok := document.Normalize(raw).(document.Document)
	if !ok {
		return Stage{}, NewInvalidStageError(util.Stringify(raw), "stage must be a mapping")
	}

	if len(doc) != 1 {
		return Stage{}, NewInvalidStageError(util.Stringify(doc),
			fmt.Sprintf("expected a single operator, got %d keys", len(doc)))
	}

	var op string
	var arg any
	for k, v := range doc {
		op, arg = k, v
	}

	if !expression.IsOperator(op) {
		return Stage{}, NewInvalidStageError(util.Stringify(doc),
			fmt.Sprintf("stage operator %q must start with '$'", op))
	}

	return Stage{Op: op, Arg: arg, raw: raw}, nil
}

// Raw returns the stage in the form it was created from.
func (s Stage) Raw() any {
	if s.raw == nil {
		return document.Document{s.Op: s.Arg}
	}
	return s.raw
}

// IsCustom returns true if the stage refers to an operator registered in the registry.
func (s Stage) IsCustom(reg *expression.Registry) bool {
	return expression.ContainsCustomOperator(s.Raw(), reg)
}

// MarshalJSON encodes the stage in relaxed MongoDB extended JSON.
func (s Stage) MarshalJSON() ([]byte, error) {
	return bson.MarshalExtJSON(s.Raw(), false, false)
}

func (s Stage) String() string {
	b, err := s.MarshalJSON()
	if err != nil {
		return util.Stringify(document.Document{s.Op: s.Arg})
	}
	return string(b)
}
