package engine

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultTempPrefix is the default name prefix of checkpoint collections.
	DefaultTempPrefix = "temp"
	// DefaultWorkers is the default number of documents evaluated concurrently in a local stage.
	DefaultWorkers = 1
)

// Config is the configuration of an aggregation engine.
type Config struct {
	// URI is the connection string of the database. Only used by Connect.
	URI string `json:"uri,omitempty"`
	// Database is the name of the database. Only used by Connect.
	Database string `json:"database,omitempty"`
	// Collection is the source collection. It is never written to or dropped.
	Collection string `json:"collection"`
	// TempPrefix is the name prefix of the temporary checkpoint collections.
	TempPrefix string `json:"tempPrefix,omitempty"`
	// Workers is the number of documents evaluated concurrently in a local stage.
	Workers int `json:"workers,omitempty"`
	// Log is the logger. The zero value discards everything.
	Log logr.Logger `json:"-"`
	// Registerer is where the engine metrics are registered. Defaults to a private registry.
	Registerer prometheus.Registerer `json:"-"`
}

// Validate checks the configuration and fills in the defaults.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return NewInvalidConfigError("source collection name must not be empty")
	}
	if strings.ContainsAny(c.Collection, "$\x00") {
		return NewInvalidConfigError("invalid source collection name " + c.Collection)
	}

	if c.TempPrefix == "" {
		c.TempPrefix = DefaultTempPrefix
	}
	if strings.ContainsAny(c.TempPrefix, "$\x00") {
		return NewInvalidConfigError("invalid temporary collection prefix " + c.TempPrefix)
	}

	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}

	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}

	return nil
}
