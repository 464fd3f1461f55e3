// Package engine implements the hybrid aggregation engine: it splits a pipeline into runs the
// database executes natively and stages evaluated locally, chains the runs through temporary
// checkpoint collections and removes the checkpoints when done.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/hybridagg/pkg/database"
	"github.com/l7mp/hybridagg/pkg/database/mongodb"
	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/pipeline"
)

// Engine runs aggregation pipelines with custom operators on a source collection.
type Engine struct {
	config   Config
	db       database.Database
	registry *expression.Registry
	local    *pipeline.LocalExecutor
	metrics  *metrics
	log      logr.Logger
}

// New creates an aggregation engine on top of a database.
func New(config Config, db database.Database) (*Engine, error) {
	if db == nil {
		return nil, NewInvalidConfigError("database must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := config.Log.WithName("engine").WithValues("source", config.Collection)
	registry := expression.NewRegistry()

	return &Engine{
		config:   config,
		db:       db,
		registry: registry,
		local:    pipeline.NewLocalExecutor(registry, config.Workers, log.WithName("local")),
		metrics:  newMetrics(config.Registerer),
		log:      log,
	}, nil
}

// Connect creates an aggregation engine on the MongoDB database given in the config.
func Connect(ctx context.Context, config Config) (*Engine, error) {
	if config.URI == "" || config.Database == "" {
		return nil, NewInvalidConfigError("database URI and name must be set")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := mongodb.Connect(ctx, config.URI, config.Database, config.Log.WithName("mongodb"))
	if err != nil {
		return nil, err
	}

	return New(config, db)
}

// Registry returns the custom operator registry of the engine. The registry must not be modified
// while an aggregation is running.
func (e *Engine) Registry() *expression.Registry { return e.registry }

// Config returns the validated configuration of the engine.
func (e *Engine) Config() Config { return e.config }

// Plan returns the execution plan of a pipeline without running it.
func (e *Engine) Plan(p pipeline.Pipeline) (*pipeline.Plan, error) {
	return pipeline.NewPlan(p, e.registry)
}

// Aggregate runs the pipeline on the source collection and returns the resulting documents.
//
// Contiguous stages without custom operators are delegated to the database in a single run,
// stages with custom operators are evaluated locally. The output of each run is materialized
// into a checkpoint collection that is the input of the next run. All checkpoints are dropped
// before Aggregate returns, whether it succeeds or fails. Errors returned by custom operators are
// returned unchanged.
func (e *Engine) Aggregate(ctx context.Context, p pipeline.Pipeline) ([]document.Document, error) {
	start := time.Now()

	ret, err := e.aggregate(ctx, p)

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.aggregateDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return ret, err
}

func (e *Engine) aggregate(ctx context.Context, p pipeline.Pipeline) ([]document.Document, error) {
	plan, err := pipeline.NewPlan(p, e.registry)
	if err != nil {
		return nil, err
	}

	e.log.V(2).Info("aggregation started", "plan", plan.String())

	cps := newCheckpoints(e.db, e.config.Collection, e.config.TempPrefix, e.metrics, e.log)
	defer cps.release(context.WithoutCancel(ctx))

	current := e.config.Collection
	for _, seg := range plan.Segments {
		var next string
		switch seg.Kind {
		case pipeline.NativeSegment:
			next, err = e.executeNativeRun(ctx, cps, current, seg.Stages)
		case pipeline.CustomSegment:
			next, err = e.executeCustomStage(ctx, cps, current, seg.Stages[0])
		default:
			err = fmt.Errorf("unknown segment kind %s", seg.Kind)
		}
		if err != nil {
			return nil, err
		}
		current = next
	}

	ret, err := e.db.Find(ctx, current)
	if err != nil {
		e.log.Error(err, "failed to read result", "collection", current)
		return nil, NewEngineExecutionError("find", current, err)
	}

	e.log.V(2).Info("aggregation ready", "checkpoints", len(cps.Names()), "documents", len(ret))

	return ret, nil
}

// Close closes the database connection.
func (e *Engine) Close(ctx context.Context) error {
	return e.db.Close(ctx)
}
