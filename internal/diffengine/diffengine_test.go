package diffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

func TestComputeCreateNotExists(t *testing.T) {
	e := New(Policy{UpdateMode: ModeUpsert})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionCreate, "Default", map[string]string{"address": "10.1.0.10"})
	result, err := e.Compute(row, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OpCreate, result.OperationType)
	assert.Empty(t, result.FieldChanges)
}

func TestComputeCreateAlreadyExistsCreateOnly(t *testing.T) {
	e := New(Policy{UpdateMode: ModeCreateOnly})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionCreate, "Default", map[string]string{"address": "10.1.0.10"})
	current := &ResourceState{ID: 42, Properties: map[string]any{"address": "10.1.0.10"}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
	assert.Equal(t, "already exists", result.Metadata["reason"])
}

func TestComputeUpdateNoChanges(t *testing.T) {
	e := New(Policy{UpdateMode: ModeStrict})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionUpdate, "Default", map[string]string{"name": "server1"})
	current := &ResourceState{ID: 5, Properties: map[string]any{"name": "server1"}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
	assert.Equal(t, "no changes", result.Metadata["reason"])
}

func TestComputeUpdateStrictMissing(t *testing.T) {
	e := New(Policy{UpdateMode: ModeStrict})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionUpdate, "Default", map[string]string{"name": "server1"})
	result, err := e.Compute(row, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
	assert.True(t, result.ConflictDetected)
}

func TestComputeUpdateUpsertMissingBecomesCreate(t *testing.T) {
	e := New(Policy{UpdateMode: ModeUpsert})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionUpdate, "Default", map[string]string{"name": "server1"})
	result, err := e.Compute(row, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OpCreate, result.OperationType)
}

func TestComputeDeleteSafeMode(t *testing.T) {
	e := New(Policy{SafeMode: true})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionDelete, "Default", map[string]string{})
	current := &ResourceState{ID: 9, Properties: map[string]any{}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
	assert.Equal(t, true, result.Metadata["safe_mode_prevented_delete"])
}

func TestComputeDeleteNotExists(t *testing.T) {
	e := New(Policy{})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionDelete, "Default", map[string]string{})
	result, err := e.Compute(row, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
}

func TestComputeDeleteNormal(t *testing.T) {
	e := New(Policy{})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionDelete, "Default", map[string]string{})
	current := &ResourceState{ID: 9, Properties: map[string]any{}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpDelete, result.OperationType)
}

func TestComputeUnknownAction(t *testing.T) {
	e := New(Policy{})
	row := model.NewRow(model.ObjectAddress, "1", model.Action("bogus"), "Default", map[string]string{})
	_, err := e.Compute(row, nil)
	assert.Error(t, err)
}

func TestFieldChangesSkipsReservedAndNormalizes(t *testing.T) {
	e := New(Policy{})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionUpdate, "Default", map[string]string{
		"row_id":  "1",
		"mtu":     "1500",
		"comment": "  hello  ",
	})
	current := &ResourceState{ID: 1, Properties: map[string]any{"mtu": float64(1400), "comment": "hello"}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpUpdate, result.OperationType)
	require.Len(t, result.FieldChanges, 1)
	assert.Equal(t, "mtu", result.FieldChanges[0].FieldName)
}

// TestFieldChangesTreatsEqualCrossNumericTypesAsUnchanged guards idempotence:
// current.Properties values come from a JSON-decoded resolver response
// (float64), while CSV-derived desired values normalize to int64. The two
// must compare equal when they represent the same number, or every
// unmodified numeric field would spuriously flip to OpUpdate on every run.
func TestFieldChangesTreatsEqualCrossNumericTypesAsUnchanged(t *testing.T) {
	e := New(Policy{})
	row := model.NewRow(model.ObjectAddress, "1", model.ActionUpdate, "Default", map[string]string{
		"mtu": "1400",
	})
	current := &ResourceState{ID: 1, Properties: map[string]any{"mtu": float64(1400)}}
	result, err := e.Compute(row, current)
	require.NoError(t, err)
	assert.Equal(t, model.OpNoop, result.OperationType)
	assert.Empty(t, result.FieldChanges)
}

func TestDetectOrphansRespectsDesiredSet(t *testing.T) {
	e := New(Policy{EnableOrphanDetection: true})
	desired := []model.Row{
		model.NewRow(model.ObjectAddress, "1", model.ActionCreate, "Default", map[string]string{"address": "10.1.0.10"}),
	}
	current := []ResourceState{
		{ID: 1, Properties: map[string]any{"address": "10.1.0.10"}},
		{ID: 2, Properties: map[string]any{"address": "10.1.0.99"}},
	}
	orphans := e.DetectOrphans(desired, current)
	require.Len(t, orphans, 1)
	assert.Equal(t, int64(2), orphans[0].Resource.ID)
	assert.Equal(t, model.OpOrphan, orphans[0].Diff.OperationType)
}

func TestDetectOrphansSafeModeDowngradesToNoop(t *testing.T) {
	e := New(Policy{EnableOrphanDetection: true, SafeMode: true})
	current := []ResourceState{{ID: 2, Properties: map[string]any{"address": "10.1.0.99"}}}
	orphans := e.DetectOrphans(nil, current)
	require.Len(t, orphans, 1)
	assert.Equal(t, model.OpNoop, orphans[0].Diff.OperationType)
	assert.Equal(t, true, orphans[0].Diff.Metadata["orphan_safe_mode"])
}

func TestDetectOrphansDisabledReturnsNil(t *testing.T) {
	e := New(Policy{EnableOrphanDetection: false})
	current := []ResourceState{{ID: 2, Properties: map[string]any{"address": "10.1.0.99"}}}
	assert.Nil(t, e.DetectOrphans(nil, current))
}
