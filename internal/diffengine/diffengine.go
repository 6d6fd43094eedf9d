// Package diffengine compares a single desired Row against optional current
// server state and classifies the reconciliation as CREATE/UPDATE/DELETE/
// NOOP/ORPHAN under the configured policy.
package diffengine

import (
	"strconv"
	"strings"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// Policy is the subset of diff-affecting configuration the engine consults.
type Policy struct {
	UpdateMode            UpdateMode
	SafeMode              bool
	EnableOrphanDetection bool
}

type UpdateMode string

const (
	ModeCreateOnly UpdateMode = "create_only"
	ModeStrict     UpdateMode = "strict"
	ModeUpsert     UpdateMode = "upsert"
)

// reservedFields are CSV scaffolding columns never treated as resource
// attributes during field-change computation.
var reservedFields = map[string]struct{}{
	"row_id":      {},
	"object_type": {},
	"action":      {},
	"config":      {},
	"version":     {},
}

// Engine computes DiffResults under a fixed Policy.
type Engine struct {
	Policy Policy
}

func New(policy Policy) *Engine {
	return &Engine{Policy: policy}
}

// Compute reconciles row against current (nil if the resource does not yet
// exist on the server).
func (e *Engine) Compute(row model.Row, current *ResourceState) (model.DiffResult, error) {
	switch row.GetAction() {
	case model.ActionCreate:
		return e.computeCreate(row, current), nil
	case model.ActionUpdate:
		return e.computeUpdate(row, current), nil
	case model.ActionDelete:
		return e.computeDelete(row, current), nil
	default:
		return model.DiffResult{}, recerr.New(recerr.KindValidation, "unknown action: "+string(row.GetAction()))
	}
}

// ResourceState is the current server-side state of a resource, as loaded by
// a resolver.
type ResourceState struct {
	ID         int64
	Type       string
	Properties map[string]any
}

func (e *Engine) computeCreate(row model.Row, current *ResourceState) model.DiffResult {
	if current == nil {
		return model.DiffResult{OperationType: model.OpCreate, Metadata: map[string]any{}}
	}
	if e.Policy.UpdateMode == ModeCreateOnly {
		return noop(current.ID, "already exists")
	}
	changes := fieldChanges(row, current)
	if len(changes) == 0 {
		return noop(current.ID, "no changes")
	}
	id := current.ID
	return model.DiffResult{OperationType: model.OpUpdate, ResourceID: &id, FieldChanges: changes, Metadata: map[string]any{}}
}

func (e *Engine) computeUpdate(row model.Row, current *ResourceState) model.DiffResult {
	if current == nil {
		switch e.Policy.UpdateMode {
		case ModeUpsert:
			return model.DiffResult{OperationType: model.OpCreate, Metadata: map[string]any{"reason": "upsert"}}
		default:
			return model.DiffResult{OperationType: model.OpNoop, ConflictDetected: true, ConflictReason: "resource does not exist", Metadata: map[string]any{}}
		}
	}
	changes := fieldChanges(row, current)
	id := current.ID
	if len(changes) == 0 {
		return noop(id, "no changes")
	}
	return model.DiffResult{OperationType: model.OpUpdate, ResourceID: &id, FieldChanges: changes, Metadata: map[string]any{}}
}

func (e *Engine) computeDelete(row model.Row, current *ResourceState) model.DiffResult {
	if current == nil {
		return model.DiffResult{OperationType: model.OpNoop, Metadata: map[string]any{"reason": "already gone"}}
	}
	id := current.ID
	if e.Policy.SafeMode {
		return model.DiffResult{OperationType: model.OpNoop, ResourceID: &id, Metadata: map[string]any{"safe_mode_prevented_delete": true}}
	}
	return model.DiffResult{OperationType: model.OpDelete, ResourceID: &id, Metadata: map[string]any{}}
}

func noop(id int64, reason string) model.DiffResult {
	return model.DiffResult{OperationType: model.OpNoop, ResourceID: &id, Metadata: map[string]any{"reason": reason}}
}

// fieldChanges compares every non-reserved attribute on row against
// current.Properties, returning the set of differing fields after
// normalization.
func fieldChanges(row model.Row, current *ResourceState) []model.FieldChange {
	var changes []model.FieldChange
	attrs := rowAttrs(row)
	for name, desired := range attrs {
		if _, reserved := reservedFields[name]; reserved {
			continue
		}
		currentVal, _ := current.Properties[name]
		dn := normalize(desired)
		cn := normalize(currentVal)
		if !equalNormalized(dn, cn) {
			changes = append(changes, model.FieldChange{FieldName: name, OldValue: currentVal, NewValue: desired})
		}
	}
	return changes
}

// rowAttrs extracts the attribute map from a Row via its AttrRow embedding,
// when present; rows with no attributes contribute an empty map.
func rowAttrs(row model.Row) map[string]any {
	type attrSource interface {
		AllAttrs() map[string]string
	}
	if src, ok := row.(attrSource); ok {
		out := make(map[string]any, len(src.AllAttrs()))
		for k, v := range src.AllAttrs() {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}

func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil
		}
		if isAllDigits(trimmed) {
			if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return trimmed
	default:
		return v
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for _, r := range s[start:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func equalNormalized(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// asFloat reports whether v is one of the numeric types normalize/current
// state can produce (int64 from CSV coercion, float64 from a JSON-decoded
// resolver response) and, if so, its float64 value for cross-type comparison.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
