package executor

import (
	"fmt"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// createdMaps holds the per-type key->id maps used to resolve deferred
// markers, mutated only by the executor's success path.
type createdMaps struct {
	blocks         map[string]int64
	networks       map[string]int64
	zones          map[string]int64
	locations      map[string]int64
	deviceTypes    map[string]int64
	deviceSubtypes map[string]int64
	devices        map[string]int64
}

func newCreatedMaps() *createdMaps {
	return &createdMaps{
		blocks: map[string]int64{}, networks: map[string]int64{}, zones: map[string]int64{},
		locations: map[string]int64{}, deviceTypes: map[string]int64{}, deviceSubtypes: map[string]int64{},
		devices: map[string]int64{},
	}
}

// resolveDeferred returns a deep-copied payload with every recognized
// "_deferred_*" marker replaced by the concrete id from created, or an error
// naming the first marker whose key is absent.
func resolveDeferred(op *model.Operation, created *createdMaps) (map[string]any, error) {
	payload := make(map[string]any, len(op.Payload))
	for k, v := range op.Payload {
		payload[k] = v
	}

	if v, ok := payload["_deferred_block_cidr"]; ok {
		id, err := lookupDeferred(created.blocks, fmt.Sprint(v), "_deferred_block_cidr", op)
		if err != nil {
			return nil, err
		}
		payload["block_id"] = id
		delete(payload, "_deferred_block_cidr")
	}
	if v, ok := payload["_deferred_network_cidr"]; ok {
		id, err := lookupDeferred(created.networks, fmt.Sprint(v), "_deferred_network_cidr", op)
		if err != nil {
			return nil, err
		}
		payload["network_id"] = id
		delete(payload, "_deferred_network_cidr")
	}
	if v, ok := payload["_deferred_zone_name"]; ok {
		id, err := lookupDeferred(created.zones, fmt.Sprint(v), "_deferred_zone_name", op)
		if err != nil {
			return nil, err
		}
		payload["zone_id"] = id
		delete(payload, "_deferred_zone_name")
	}
	if v, ok := payload["_deferred_location_code"]; ok {
		id, err := lookupDeferred(created.locations, fmt.Sprint(v), "_deferred_location_code", op)
		if err != nil {
			return nil, err
		}
		if op.ObjectType == model.ObjectLocation {
			payload["parent_location_id"] = id
		} else {
			payload["location"] = map[string]any{"id": id}
		}
		delete(payload, "_deferred_location_code")
	}
	if v, ok := payload["_deferred_device_type_name"]; ok {
		id, err := lookupDeferred(created.deviceTypes, fmt.Sprint(v), "_deferred_device_type_name", op)
		if err != nil {
			return nil, err
		}
		payload["device_type_id"] = id
		delete(payload, "_deferred_device_type_name")
	}
	if v, ok := payload["_deferred_device_subtype_name"]; ok {
		id, err := lookupDeferred(created.deviceSubtypes, fmt.Sprint(v), "_deferred_device_subtype_name", op)
		if err != nil {
			return nil, err
		}
		payload["device_subtype_id"] = id
		delete(payload, "_deferred_device_subtype_name")
	}
	if v, ok := payload["_deferred_device_name"]; ok {
		key := fmt.Sprint(v)
		if cfg, ok := payload["_deferred_device_config"]; ok {
			key = fmt.Sprint(cfg) + "/" + key
		}
		id, err := lookupDeferred(created.devices, key, "_deferred_device_name", op)
		if err != nil {
			return nil, err
		}
		payload["device_id"] = id
		delete(payload, "_deferred_device_name")
		delete(payload, "_deferred_device_config")
	}

	return payload, nil
}

func lookupDeferred(m map[string]int64, key, markerKey string, op *model.Operation) (int64, error) {
	id, ok := m[key]
	if !ok {
		return 0, recerr.New(recerr.KindDeferredResolution, "deferred reference not resolvable").
			WithDetail("row_id", op.RowID).
			WithDetail("resource_type", string(op.ObjectType)).
			WithDetail("deferred_key", markerKey).
			WithDetail("deferred_value", key)
	}
	return id, nil
}

// recordCreated updates the in-memory created-resource maps after a
// successful CREATE; callers hold the executor's single mutation path.
func recordCreated(created *createdMaps, op *model.Operation, id int64) (model.CreatedResourceType, string, bool) {
	row := op.CSVRow
	switch op.ObjectType {
	case model.ObjectBlock, model.ObjectBlock6:
		if cidr, ok := row.Attr("cidr"); ok {
			created.blocks[cidr] = id
			return model.CreatedBlock, cidr, true
		}
	case model.ObjectNetwork, model.ObjectNetwork6:
		if cidr, ok := row.Attr("cidr"); ok {
			created.networks[cidr] = id
			return model.CreatedNetwork, cidr, true
		}
	case model.ObjectZone:
		if name, ok := row.Attr("zone_name"); ok {
			created.zones[name] = id
			return model.CreatedZone, name, true
		}
	case model.ObjectLocation:
		if code, ok := row.Attr("code"); ok {
			created.locations[code] = id
			return model.CreatedLocation, code, true
		}
	case model.ObjectDeviceType:
		if name, ok := row.Attr("name"); ok {
			created.deviceTypes[name] = id
			return model.CreatedDeviceType, name, true
		}
	case model.ObjectDeviceSubtype:
		if name, ok := row.Attr("name"); ok {
			created.deviceSubtypes[name] = id
			return model.CreatedDeviceSubtype, name, true
		}
	case model.ObjectDevice:
		if name, ok := row.Attr("name"); ok {
			key := row.Config() + "/" + name
			created.devices[key] = id
			created.devices[name] = id
			return model.CreatedDevice, key, true
		}
	}
	return "", "", false
}
