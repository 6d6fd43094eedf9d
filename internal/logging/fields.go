// Package logging provides a chainable structured-field builder on top of
// logrus, matching the field-builder style used throughout the codebase this
// project is patterned on.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a chainable builder that accumulates logrus.Fields.
type Fields struct {
	f logrus.Fields
}

// New starts an empty Fields builder.
func New() *Fields {
	return &Fields{f: logrus.Fields{}}
}

func (b *Fields) Component(name string) *Fields {
	b.f["component"] = name
	return b
}

func (b *Fields) Operation(name string) *Fields {
	b.f["operation"] = name
	return b
}

func (b *Fields) Resource(objectType, rowID string) *Fields {
	b.f["object_type"] = objectType
	b.f["row_id"] = rowID
	return b
}

func (b *Fields) SessionID(id string) *Fields {
	b.f["session_id"] = id
	return b
}

func (b *Fields) BatchID(id int) *Fields {
	b.f["batch_id"] = id
	return b
}

func (b *Fields) Duration(d time.Duration) *Fields {
	b.f["duration_ms"] = d.Milliseconds()
	return b
}

func (b *Fields) Error(err error) *Fields {
	if err != nil {
		b.f["error"] = err.Error()
	}
	return b
}

func (b *Fields) With(key string, value any) *Fields {
	b.f[key] = value
	return b
}

// Logrus returns the accumulated logrus.Fields for use with a logrus.Entry.
func (b *Fields) Logrus() logrus.Fields {
	return b.f
}

// DiffFields seeds a builder for the diff engine.
func DiffFields(objectType, rowID string) *Fields {
	return New().Component("diffengine").Resource(objectType, rowID)
}

// GraphFields seeds a builder for the dependency graph.
func GraphFields(nodeID string) *Fields {
	return New().Component("depgraph").With("node_id", nodeID)
}

// ExecutorFields seeds a builder for the executor.
func ExecutorFields(sessionID string, batchID int) *Fields {
	return New().Component("executor").SessionID(sessionID).BatchID(batchID)
}

// PersistenceFields seeds a builder for the persistence layer.
func PersistenceFields(sessionID string) *Fields {
	return New().Component("persistence").SessionID(sessionID)
}
