package engine

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/hybridagg/pkg/database"
)

// checkpoints tracks the temporary collections created during a single aggregation call, in
// creation order. A name is tracked before the collection is written so that a partially
// materialized checkpoint is dropped as well.
type checkpoints struct {
	db      database.Database
	source  string
	prefix  string
	names   []string
	metrics *metrics
	log     logr.Logger
}

func newCheckpoints(db database.Database, source, prefix string, m *metrics, log logr.Logger) *checkpoints {
	return &checkpoints{db: db, source: source, prefix: prefix, names: []string{}, metrics: m, log: log}
}

// newCheckpointName returns a unique collection name of the form <prefix>_<32 hex digits>.
func newCheckpointName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// acquire returns a fresh checkpoint name and registers it for cleanup.
func (c *checkpoints) acquire() string {
	name := newCheckpointName(c.prefix)
	for name == c.source {
		name = newCheckpointName(c.prefix)
	}

	c.names = append(c.names, name)
	c.metrics.checkpointsMade.Inc()
	c.log.V(4).Info("checkpoint created", "name", name)

	return name
}

// Names returns the tracked checkpoints in creation order.
func (c *checkpoints) Names() []string {
	return append([]string{}, c.names...)
}

// release drops every tracked checkpoint except the source collection. Failures are logged and
// counted, never returned.
func (c *checkpoints) release(ctx context.Context) {
	for _, name := range c.names {
		if name == c.source {
			continue
		}

		if err := c.db.Drop(ctx, name); err != nil {
			c.metrics.cleanupFailures.Inc()
			c.log.Error(err, "failed to drop checkpoint, ignoring", "name", name)
			continue
		}

		c.metrics.checkpointsDrop.Inc()
		c.log.V(4).Info("checkpoint dropped", "name", name)
	}

	c.names = c.names[:0]
}
