// Package database defines the document store the aggregation engine runs on.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/l7mp/hybridagg/pkg/document"
)

// OutOp is the stage that materializes the output of a native pipeline into a collection.
const OutOp = "$out"

// ErrDatabase is returned by database implementations on a failed operation.
var ErrDatabase = errors.New("database error")

func NewDatabaseError(op, collection string, err error) error {
	return fmt.Errorf("%w: %s on collection %q: %w", ErrDatabase, op, collection, err)
}

// Database is a document store exposing the operations issued by the aggregation engine. Returned
// documents are in the canonical form of document.Normalize.
type Database interface {
	// Find returns all documents of a collection. A missing collection yields no documents.
	Find(ctx context.Context, collection string) ([]document.Document, error)
	// Insert writes the documents into a collection, creating it if needed.
	Insert(ctx context.Context, collection string, docs []document.Document) error
	// RunPipeline executes a native pipeline on a collection. The last stage of the pipeline is
	// an $out stage that names the target collection.
	RunPipeline(ctx context.Context, collection string, stages []any) error
	// Drop removes a collection. Dropping a missing collection is not an error.
	Drop(ctx context.Context, collection string) error
	// Close releases the database connection.
	Close(ctx context.Context) error
}
