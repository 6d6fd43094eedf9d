package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoesN0tCompute/bamreconciler/internal/executor"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
	"github.com/DoesN0tCompute/bamreconciler/internal/resolvercache"
	"github.com/DoesN0tCompute/bamreconciler/internal/throttle"
)

// stubStore implements persistence.Store with just enough behavior for
// resolveSession's tests; every other method is a deliberate no-op.
type stubStore struct {
	resumable *model.Checkpoint
	created   map[model.CreatedResourceType]map[string]int64
}

func (s *stubStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error { return nil }
func (s *stubStore) GetLatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	return nil, nil
}
func (s *stubStore) FindResumableSession(ctx context.Context, inputHash string) (*model.Checkpoint, error) {
	return s.resumable, nil
}
func (s *stubStore) MarkSessionCompleted(ctx context.Context, sessionID string) error { return nil }
func (s *stubStore) MarkSessionFailed(ctx context.Context, sessionID, errMsg string) error {
	return nil
}
func (s *stubStore) SaveCreatedResource(ctx context.Context, r *model.CreatedResource) error {
	return nil
}
func (s *stubStore) LoadCreatedResources(ctx context.Context, sessionID string) (map[model.CreatedResourceType]map[string]int64, error) {
	return s.created, nil
}
func (s *stubStore) ClearCreatedResources(ctx context.Context, sessionID string) error { return nil }
func (s *stubStore) CleanupOldCheckpoints(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}
func (s *stubStore) RecordChange(ctx context.Context, entry *model.ChangeLogEntry) error { return nil }
func (s *stubStore) GetSessionEntries(ctx context.Context, sessionID string) ([]model.ChangeLogEntry, error) {
	return nil, nil
}
func (s *stubStore) Close() error { return nil }

func newTestExecutor() *executor.Executor {
	th := throttle.New(throttle.Config{InitialConcurrency: 1, MinConcurrency: 1, MaxConcurrency: 1, SuccessStreakToGrow: 1, LatencyBudgetMS: 100})
	return executor.New(executor.NewRegistry(), th, nil, resolvercache.NewInProcess(), nil)
}

func TestResolveSessionMintsFreshIDWhenNoneResumable(t *testing.T) {
	store := &stubStore{}
	id, opts, err := resolveSession(context.Background(), store, "", "hash-1", newTestExecutor(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, opts.SessionID)
	assert.Equal(t, "hash-1", opts.InputHash)
}

func TestResolveSessionReusesResumableSession(t *testing.T) {
	store := &stubStore{resumable: &model.Checkpoint{SessionID: "resume-me"}}
	id, opts, err := resolveSession(context.Background(), store, "", "hash-1", newTestExecutor(), nil)
	require.NoError(t, err)
	assert.Equal(t, "resume-me", id)
	assert.Equal(t, "resume-me", opts.SessionID)
}

func TestResolveSessionPreloadsCreatedResources(t *testing.T) {
	store := &stubStore{created: map[model.CreatedResourceType]map[string]int64{
		model.CreatedBlock: {"10.0.0.0/8": 7},
	}}
	exec := newTestExecutor()
	id, _, err := resolveSession(context.Background(), store, "existing-session", "hash-1", exec, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "existing-session", id)
}

func TestHashFileIsStableAndContentAddressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("row_id,object_type\n1,ip4_block\n"), 0o644))

	first, err := hashFile(path)
	require.NoError(t, err)
	second, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("row_id,object_type\n2,ip4_network\n"), 0o644))
	third, err := hashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestRunStatusSnapshotOnlyMatchesTrackedSession(t *testing.T) {
	rs := newRunStatus()
	rs.start("abc", 10)

	_, ok := rs.snapshot("other")
	assert.False(t, ok)

	snap, ok := rs.snapshot("abc")
	require.True(t, ok)
	assert.Equal(t, 10, snap["total_rows"])
	assert.Equal(t, false, snap["done"])

	rs.finish("abc", executor.Statistics{Total: 10, Succeeded: 9, Failed: 1})
	snap, ok = rs.snapshot("abc")
	require.True(t, ok)
	assert.Equal(t, true, snap["done"])
	assert.Equal(t, 9, snap["succeeded"])
	assert.Equal(t, 1, snap["failed"])
}
