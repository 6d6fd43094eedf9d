// Package executor drives an ExecutionPlan to completion: per-batch
// parallel dispatch, deferred-reference resolution, cascading failure
// propagation, created-resource bookkeeping, and checkpoint/change-log
// persistence.
package executor

import (
	"context"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// Handler performs CREATE/UPDATE/DELETE for one object type against the
// IPAM client and knows how to look the resource up by its natural key for
// conflict resolution.
type Handler interface {
	Create(ctx context.Context, op *model.Operation) (resourceID int64, err error)
	Update(ctx context.Context, op *model.Operation) error
	Delete(ctx context.Context, op *model.Operation) error
	// LookupByNaturalKey returns the existing resource id for op's row, if
	// any, used on a CREATE conflict (ResourceAlreadyExists) to make the
	// retry idempotent rather than re-raising.
	LookupByNaturalKey(ctx context.Context, op *model.Operation) (resourceID int64, found bool, err error)
}

// Registry dispatches to the Handler registered for an operation's object
// type.
type Registry struct {
	handlers map[model.ObjectType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[model.ObjectType]Handler{}}
}

// Register associates a Handler with objectType, overwriting any previous
// registration.
func (r *Registry) Register(objectType model.ObjectType, h Handler) {
	r.handlers[objectType] = h
}

// For returns the handler for objectType and whether one is registered.
func (r *Registry) For(objectType model.ObjectType) (Handler, bool) {
	h, ok := r.handlers[objectType]
	return h, ok
}
