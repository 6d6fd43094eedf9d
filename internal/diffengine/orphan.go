package diffengine

import (
	"fmt"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// OrphanResult pairs a detected orphan's current state with its DiffResult.
type OrphanResult struct {
	Resource ResourceState
	Diff     model.DiffResult
}

// DetectOrphans scans currentResources (already restricted by the caller to
// the exact containers the CSV defines — this function never widens scope)
// and reports any resource absent from both the desired bam-id set and the
// desired natural-key set.
func (e *Engine) DetectOrphans(desired []model.Row, currentResources []ResourceState) []OrphanResult {
	if !e.Policy.EnableOrphanDetection {
		return nil
	}
	desiredIDs := map[int64]struct{}{}
	desiredKeys := map[string]struct{}{}
	for _, r := range desired {
		if id, ok := r.BamID(); ok {
			desiredIDs[id] = struct{}{}
		}
		desiredKeys[uniqueKey(r.Type(), attrString(r))] = struct{}{}
	}

	var orphans []OrphanResult
	for _, cur := range currentResources {
		if _, ok := desiredIDs[cur.ID]; ok {
			continue
		}
		key := uniqueKeyFromState(cur)
		if _, ok := desiredKeys[key]; ok {
			continue
		}
		diff := model.DiffResult{
			OperationType: model.OpOrphan,
			ResourceID:    &cur.ID,
			Metadata: map[string]any{
				"name":    cur.Properties["name"],
				"address": cur.Properties["address"],
				"cidr":    cur.Properties["cidr"],
			},
		}
		if e.Policy.SafeMode {
			diff.OperationType = model.OpNoop
			diff.Metadata["orphan_safe_mode"] = true
		}
		orphans = append(orphans, OrphanResult{Resource: cur, Diff: diff})
	}
	return orphans
}

// attrString returns a best-effort primary attribute value (address, cidr,
// or name) for natural-key derivation from a desired row.
func attrString(r model.Row) string {
	for _, name := range []string{"address", "cidr", "name"} {
		if v, ok := r.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func uniqueKey(objType model.ObjectType, value string) string {
	switch objType {
	case model.ObjectAddress, model.ObjectAddress6:
		return "address:" + value
	case model.ObjectNetwork, model.ObjectNetwork6, model.ObjectBlock, model.ObjectBlock6:
		return "cidr:" + value
	case model.ObjectZone, model.ObjectHostRecord, model.ObjectExternalHostRecord:
		return "name:" + value
	default:
		return "name:" + value
	}
}

func uniqueKeyFromState(s ResourceState) string {
	if v, ok := s.Properties["address"]; ok {
		return "address:" + fmt.Sprint(v)
	}
	if v, ok := s.Properties["cidr"]; ok {
		return "cidr:" + fmt.Sprint(v)
	}
	if v, ok := s.Properties["name"]; ok {
		return "name:" + fmt.Sprint(v)
	}
	return fmt.Sprintf("id:%d", s.ID)
}
