package engine

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/l7mp/hybridagg/pkg/database"
	"github.com/l7mp/hybridagg/pkg/pipeline"
)

// executeNativeRun submits a contiguous run of native stages to the database, materializing the
// output into a new checkpoint. Returns the name of the checkpoint.
func (e *Engine) executeNativeRun(ctx context.Context, cps *checkpoints, input string, stages []pipeline.Stage) (string, error) {
	target := cps.acquire()

	raw := make([]any, 0, len(stages)+1)
	for i := range stages {
		raw = append(raw, stages[i].Raw())
	}
	raw = append(raw, bson.D{{Key: database.OutOp, Value: target}})

	e.log.V(2).Info("delegating native run", "input", input, "target", target, "stages", len(stages))

	if err := e.db.RunPipeline(ctx, input, raw); err != nil {
		e.log.Error(err, "native run failed", "input", input, "target", target)
		return "", NewEngineExecutionError("native run", input, err)
	}

	e.metrics.nativeRuns.Inc()

	return target, nil
}

// executeCustomStage reads the input collection, evaluates the stage locally and materializes
// the result into a new checkpoint. Returns the name of the checkpoint.
func (e *Engine) executeCustomStage(ctx context.Context, cps *checkpoints, input string, stage pipeline.Stage) (string, error) {
	docs, err := e.db.Find(ctx, input)
	if err != nil {
		e.log.Error(err, "failed to read documents", "collection", input)
		return "", NewEngineExecutionError("find", input, err)
	}

	e.log.V(2).Info("evaluating custom stage", "input", input, "stage", stage.String(),
		"documents", len(docs))

	res, err := e.local.Execute(ctx, stage, docs)
	if err != nil {
		return "", err
	}

	e.metrics.localStages.WithLabelValues(stage.Op).Inc()

	target := cps.acquire()
	if err := e.db.Insert(ctx, target, res); err != nil {
		e.log.Error(err, "failed to materialize documents", "collection", target)
		return "", NewEngineExecutionError("insert", target, err)
	}

	return target, nil
}
