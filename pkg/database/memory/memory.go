// Package memory implements an in-memory database for tests and dry runs. It interprets a small
// subset of the native aggregation stages.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/l7mp/hybridagg/pkg/database"
	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/pipeline"
)

var _ database.Database = &DB{}

// Op is a database operation.
type Op string

const (
	FindOp        Op = "find"
	InsertOp      Op = "insert"
	RunPipelineOp Op = "aggregate"
	DropOp        Op = "drop"
)

// Call is a record of a database operation.
type Call struct {
	Op         Op
	Collection string
}

type failure struct {
	op     Op
	prefix string
	err    error
}

// DB is an in-memory database. Every read and write makes a deep copy of the documents.
type DB struct {
	mu          sync.Mutex
	collections map[string][]document.Document
	failures    []failure
	calls       []Call
	local       *pipeline.LocalExecutor
	log         logr.Logger
}

// New creates an empty in-memory database.
func New(log logr.Logger) *DB {
	return &DB{
		collections: map[string][]document.Document{},
		local:       pipeline.NewLocalExecutor(expression.NewRegistry(), 1, log),
		log:         log,
	}
}

// FailOn makes every subsequent operation op on a collection whose name starts with prefix fail
// with err. An empty prefix matches every collection.
func (d *DB) FailOn(op Op, prefix string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failure{op: op, prefix: prefix, err: err})
}

// ClearFailures removes all injected failures.
func (d *DB) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = nil
}

// Calls returns the operations issued on the database so far.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call{}, d.calls...)
}

// CallsOf returns the operations of the given kind issued on the database so far.
func (d *DB) CallsOf(op Op) []Call {
	ret := []Call{}
	for _, c := range d.Calls() {
		if c.Op == op {
			ret = append(ret, c)
		}
	}
	return ret
}

// Collections returns the names of the existing collections in lexicographic order.
func (d *DB) Collections() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := make([]string, 0, len(d.collections))
	for k := range d.collections {
		ret = append(ret, k)
	}
	sort.Strings(ret)

	return ret
}

// must be called with the lock held
func (d *DB) record(op Op, collection string) error {
	d.calls = append(d.calls, Call{Op: op, Collection: collection})
	for _, f := range d.failures {
		if f.op == op && strings.HasPrefix(collection, f.prefix) {
			return database.NewDatabaseError(string(op), collection, f.err)
		}
	}
	return nil
}

func (d *DB) Find(_ context.Context, collection string) ([]document.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(FindOp, collection); err != nil {
		return nil, err
	}

	return document.DeepCopyList(d.collections[collection]), nil
}

func (d *DB) Insert(_ context.Context, collection string, docs []document.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(InsertOp, collection); err != nil {
		return err
	}

	d.collections[collection] = append(d.collections[collection], document.DeepCopyList(docs)...)

	return nil
}

func (d *DB) RunPipeline(ctx context.Context, collection string, stages []any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(RunPipelineOp, collection); err != nil {
		return err
	}

	docs := document.DeepCopyList(d.collections[collection])
	for i, raw := range stages {
		stage, err := pipeline.NewStage(raw)
		if err != nil {
			return database.NewDatabaseError(string(RunPipelineOp), collection, err)
		}

		if stage.Op == database.OutOp {
			if i != len(stages)-1 {
				return database.NewDatabaseError(string(RunPipelineOp), collection,
					fmt.Errorf("%s can only be the final stage in the pipeline", database.OutOp))
			}
			target, ok := stage.Arg.(string)
			if !ok || target == "" {
				return database.NewDatabaseError(string(RunPipelineOp), collection,
					fmt.Errorf("invalid %s target: %v", database.OutOp, stage.Arg))
			}
			d.collections[target] = docs
			d.log.V(4).Info("aggregate", "collection", collection, "target", target, "documents", len(docs))
			return nil
		}

		docs, err = d.runStage(ctx, stage, docs)
		if err != nil {
			return database.NewDatabaseError(string(RunPipelineOp), collection, err)
		}
	}

	return nil
}

func (d *DB) Drop(_ context.Context, collection string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.record(DropOp, collection); err != nil {
		return err
	}

	delete(d.collections, collection)

	return nil
}

func (d *DB) Close(context.Context) error { return nil }

func (d *DB) runStage(ctx context.Context, stage pipeline.Stage, docs []document.Document) ([]document.Document, error) {
	switch stage.Op {
	case "$match":
		filter, ok := stage.Arg.(document.Document)
		if !ok {
			return nil, fmt.Errorf("$match argument must be a document")
		}
		ret := []document.Document{}
		for _, doc := range docs {
			ok, err := matches(doc, filter)
			if err != nil {
				return nil, err
			}
			if ok {
				ret = append(ret, doc)
			}
		}
		return ret, nil

	case pipeline.ProjectOp, pipeline.AddFieldsOp:
		return d.local.Execute(ctx, stage, docs)

	case "$sort":
		keys, err := sortKeys(stage)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(docs, func(i, j int) bool {
			for _, k := range keys {
				c := compare(document.Resolve(docs[i], k.path), document.Resolve(docs[j], k.path))
				if c != 0 {
					return c*k.dir < 0
				}
			}
			return false
		})
		return docs, nil

	case "$skip":
		n, err := expression.AsInt(stage.Arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid $skip argument: %v", stage.Arg)
		}
		if n >= int64(len(docs)) {
			return []document.Document{}, nil
		}
		return docs[n:], nil

	case "$limit":
		n, err := expression.AsInt(stage.Arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid $limit argument: %v", stage.Arg)
		}
		if n < int64(len(docs)) {
			return docs[:n], nil
		}
		return docs, nil

	default:
		return nil, fmt.Errorf("unsupported stage %q", stage.Op)
	}
}
