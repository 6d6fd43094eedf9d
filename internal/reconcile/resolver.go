// Package reconcile wires the diff engine, dependency graph, planner, and
// executor into the single pipeline a reconciliation session drives end to
// end: compute_diff, build_from_operations, create_plan, execute_plan.
package reconcile

import (
	"context"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/diffengine"
	"github.com/DoesN0tCompute/bamreconciler/internal/executor"
	"github.com/DoesN0tCompute/bamreconciler/internal/ipamclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
	"github.com/DoesN0tCompute/bamreconciler/internal/resolvercache"
)

// Resolver loads the current server-side state for a desired row, or nil if
// the resource does not yet exist, feeding diffengine.Engine.Compute.
type Resolver interface {
	Resolve(ctx context.Context, row model.Row) (*diffengine.ResourceState, error)
}

// IPAMResolver resolves current state by natural key (the server exposes no
// bulk-by-id lookup), consulting the resolver cache by path first.
type IPAMResolver struct {
	client ipamclient.Client
	cache  resolvercache.Cache
}

func NewIPAMResolver(client ipamclient.Client, cache resolvercache.Cache) *IPAMResolver {
	return &IPAMResolver{client: client, cache: cache}
}

func (r *IPAMResolver) Resolve(ctx context.Context, row model.Row) (*diffengine.ResourceState, error) {
	wireName, ok := executor.WireName(row.Type())
	if !ok {
		return nil, nil
	}

	path, hasPath := pathAttr(row)
	if hasPath && r.cache != nil {
		if cached, found := r.cache.Get(ctx, path); found {
			return stateFromCached(cached), nil
		}
	}

	keyFunc := executor.NaturalKey(row.Type())
	if keyFunc == nil {
		return nil, nil
	}
	op := &model.Operation{ObjectType: row.Type(), CSVRow: row}
	key, ok := keyFunc(op)
	if !ok {
		return nil, nil
	}

	resp, err := r.client.LookupByNaturalKey(ctx, wireName, key)
	if err != nil {
		if recerr.Is(err, recerr.KindResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	state := stateFromResponse(row.Type(), resp)
	if hasPath && r.cache != nil {
		r.cache.Set(ctx, path, resp, 0)
	}
	return state, nil
}

func stateFromResponse(objectType model.ObjectType, resp map[string]any) *diffengine.ResourceState {
	id, _ := resp["id"].(float64)
	return &diffengine.ResourceState{ID: int64(id), Type: string(objectType), Properties: resp}
}

func stateFromCached(cached map[string]any) *diffengine.ResourceState {
	id, _ := cached["id"].(float64)
	return &diffengine.ResourceState{ID: int64(id), Properties: cached}
}

func pathAttr(row model.Row) (string, bool) {
	for _, name := range []string{"config", "parent", "view_path"} {
		if v, ok := row.Attr(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
