// Package mongodb implements the database collaborator on top of the MongoDB Go driver.
package mongodb

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/l7mp/hybridagg/pkg/database"
	"github.com/l7mp/hybridagg/pkg/document"
)

var _ database.Database = &DB{}

// DB is a database handle on a MongoDB database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	log    logr.Logger
}

// Connect connects to the MongoDB deployment at uri and checks the connection.
func Connect(ctx context.Context, uri, dbName string, log logr.Logger) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping %s: %w", uri, err)
	}

	log.V(2).Info("connected to database", "database", dbName)

	return New(client, dbName, log), nil
}

// New creates a database handle from an existing client.
func New(client *mongo.Client, dbName string, log logr.Logger) *DB {
	return &DB{
		client: client,
		db:     client.Database(dbName),
		log:    log,
	}
}

func (d *DB) Find(ctx context.Context, collection string) ([]document.Document, error) {
	cursor, err := d.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, database.NewDatabaseError("find", collection, err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, database.NewDatabaseError("find", collection, err)
	}

	ret := make([]document.Document, 0, len(results))
	for _, r := range results {
		doc, err := document.FromAny(r)
		if err != nil {
			return nil, database.NewDatabaseError("find", collection, err)
		}
		ret = append(ret, doc)
	}

	d.log.V(4).Info("find", "collection", collection, "documents", len(ret))

	return ret, nil
}

func (d *DB) Insert(ctx context.Context, collection string, docs []document.Document) error {
	// InsertMany rejects an empty slice: the collection is created lazily by the first write
	if len(docs) == 0 {
		return nil
	}

	ds := make([]any, len(docs))
	for i := range docs {
		ds[i] = docs[i]
	}

	if _, err := d.db.Collection(collection).InsertMany(ctx, ds); err != nil {
		return database.NewDatabaseError("insert", collection, err)
	}

	d.log.V(4).Info("insert", "collection", collection, "documents", len(docs))

	return nil
}

func (d *DB) RunPipeline(ctx context.Context, collection string, stages []any) error {
	cursor, err := d.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return database.NewDatabaseError("aggregate", collection, err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	// $out produces no output, drain the cursor to surface errors
	for cursor.Next(ctx) {
	}
	if err := cursor.Err(); err != nil {
		return database.NewDatabaseError("aggregate", collection, err)
	}

	d.log.V(4).Info("aggregate", "collection", collection, "stages", len(stages))

	return nil
}

func (d *DB) Drop(ctx context.Context, collection string) error {
	if err := d.db.Collection(collection).Drop(ctx); err != nil {
		return database.NewDatabaseError("drop", collection, err)
	}

	d.log.V(4).Info("drop", "collection", collection)

	return nil
}

// Collections returns the names of the collections of the database.
func (d *DB) Collections(ctx context.Context) ([]string, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, database.NewDatabaseError("list", d.db.Name(), err)
	}
	return names, nil
}

func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
