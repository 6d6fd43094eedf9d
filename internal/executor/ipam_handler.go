package executor

import (
	"context"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/ipamclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// NaturalKeyFunc derives the lookup key a conflict-fallback or natural-key
// resolver uses for op, or ok=false when op's row carries no usable key.
type NaturalKeyFunc func(op *model.Operation) (key map[string]string, ok bool)

// IPAMHandler is a Handler backed by the generic ipamclient.Client, bound to
// one object type's wire name and natural-key extraction rule. One instance
// is registered per ObjectType rather than writing a bespoke handler per
// type, since the wire shape (create/update/delete by id, lookup by natural
// key) is uniform across the taxonomy.
type IPAMHandler struct {
	client     ipamclient.Client
	objectType string
	naturalKey NaturalKeyFunc
}

func NewIPAMHandler(client ipamclient.Client, objectType string, naturalKey NaturalKeyFunc) *IPAMHandler {
	return &IPAMHandler{client: client, objectType: objectType, naturalKey: naturalKey}
}

func (h *IPAMHandler) Create(ctx context.Context, op *model.Operation) (int64, error) {
	path, _ := op.Payload["resource_path"].(string)
	resp, err := h.client.Create(ctx, h.objectType, path, op.Payload)
	if err != nil {
		return 0, err
	}
	return extractID(resp)
}

func (h *IPAMHandler) Update(ctx context.Context, op *model.Operation) error {
	if op.ResourceID == nil {
		return recerr.New(recerr.KindValidation, "update requires a resolved resource id").WithDetail("row_id", op.RowID)
	}
	return h.client.UpdateByID(ctx, *op.ResourceID, h.objectType, op.Payload)
}

func (h *IPAMHandler) Delete(ctx context.Context, op *model.Operation) error {
	if op.ResourceID == nil {
		return recerr.New(recerr.KindValidation, "delete requires a resolved resource id").WithDetail("row_id", op.RowID)
	}
	allowDangerous, _ := op.Payload["allow_dangerous_delete"].(bool)
	return h.client.DeleteByID(ctx, *op.ResourceID, h.objectType, allowDangerous)
}

func (h *IPAMHandler) LookupByNaturalKey(ctx context.Context, op *model.Operation) (int64, bool, error) {
	if h.naturalKey == nil {
		return 0, false, nil
	}
	key, ok := h.naturalKey(op)
	if !ok {
		return 0, false, nil
	}
	resp, err := h.client.LookupByNaturalKey(ctx, h.objectType, key)
	if err != nil {
		if recerr.Is(err, recerr.KindResourceNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	id, err := extractID(resp)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

func extractID(resp map[string]any) (int64, error) {
	v, ok := resp["id"]
	if !ok {
		return 0, recerr.New(recerr.KindServer, "ipam response carried no id field")
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, recerr.New(recerr.KindServer, "ipam response id field had an unexpected type")
	}
}
