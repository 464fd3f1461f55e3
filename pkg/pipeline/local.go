package pipeline

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/util"
)

const (
	ProjectOp   = "$project"
	AddFieldsOp = "$addFields"
)

// IsLocalStage returns true if the stage operator can be evaluated by the local executor.
func IsLocalStage(op string) bool {
	return op == ProjectOp || op == AddFieldsOp
}

type fieldMode int

const (
	evalField fieldMode = iota
	includeField
	excludeField
)

type fieldSpec struct {
	key  string
	mode fieldMode
	exp  expression.Expression
}

// LocalExecutor evaluates projection-style stages in process memory, document by document.
type LocalExecutor struct {
	registry *expression.Registry
	workers  int
	log      logr.Logger
}

// NewLocalExecutor creates a local stage executor. With workers > 1 documents are evaluated
// concurrently; the output order always equals the input order.
func NewLocalExecutor(reg *expression.Registry, workers int, log logr.Logger) *LocalExecutor {
	if reg == nil {
		reg = expression.NewRegistry()
	}
	if workers < 1 {
		workers = 1
	}
	return &LocalExecutor{registry: reg, workers: workers, log: log}
}

// Execute applies a $project or $addFields stage to each document and returns one output document
// per input document, in input order. The input documents are not modified.
func (x *LocalExecutor) Execute(ctx context.Context, stage Stage, docs []document.Document) ([]document.Document, error) {
	if !IsLocalStage(stage.Op) {
		return nil, NewUnsupportedCustomStageError(stage.Op)
	}

	specs, err := parseFieldSpecs(stage)
	if err != nil {
		return nil, err
	}

	x.log.V(2).Info("evaluating local stage", "stage", stage.String(), "documents", len(docs),
		"workers", x.workers)

	ret := make([]document.Document, len(docs))

	if x.workers == 1 || len(docs) < 2 {
		for i := range docs {
			out, err := x.apply(ctx, stage.Op, specs, docs[i])
			if err != nil {
				return nil, err
			}
			ret[i] = out
		}
		return ret, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for i := range docs {
		g.Go(func() error {
			out, err := x.apply(gctx, stage.Op, specs, docs[i])
			if err != nil {
				return err
			}
			ret[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return ret, nil
}

func (x *LocalExecutor) apply(ctx context.Context, op string, specs []fieldSpec, doc document.Document) (document.Document, error) {
	evalCtx := expression.EvalCtx{Context: ctx, Document: doc, Registry: x.registry, Log: x.log}

	var out document.Document
	if op == AddFieldsOp {
		out = document.DeepCopy(doc)
		if out == nil {
			out = document.Document{}
		}
	} else {
		out = document.Document{}
		if id, ok := doc[document.IDField]; ok {
			out[document.IDField] = document.Normalize(id)
		}
	}

	for i := range specs {
		spec := &specs[i]
		switch spec.mode {
		case includeField:
			if v, ok := doc[spec.key]; ok {
				out[spec.key] = document.Normalize(v)
			}
		case excludeField:
			delete(out, spec.key)
		default:
			v, err := spec.exp.Evaluate(evalCtx)
			if err != nil {
				return nil, err
			}
			out[spec.key] = v
		}
	}

	return out, nil
}

func parseFieldSpecs(stage Stage) ([]fieldSpec, error) {
	fields, ok := stage.Arg.(document.Document)
	if !ok {
		return nil, NewInvalidStageError(stage.String(),
			fmt.Sprintf("%s argument must be a document, got %s", stage.Op, util.Stringify(stage.Arg)))
	}

	keys := document.Keys(fields)
	ret := make([]fieldSpec, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		switch {
		case isInclusionMarker(v):
			ret = append(ret, fieldSpec{key: k, mode: includeField})
		case isExclusionMarker(v):
			ret = append(ret, fieldSpec{key: k, mode: excludeField})
		default:
			ret = append(ret, fieldSpec{key: k, mode: evalField, exp: expression.Parse(v)})
		}
	}

	return ret, nil
}

func isInclusionMarker(v any) bool {
	switch m := v.(type) {
	case bool:
		return m
	case int64:
		return m == 1
	case float64:
		return m == 1
	}
	return false
}

func isExclusionMarker(v any) bool {
	switch m := v.(type) {
	case bool:
		return !m
	case int64:
		return m == 0
	case float64:
		return m == 0
	}
	return false
}
