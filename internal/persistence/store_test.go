package persistence

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	store, err := newStore(sqlxDB)
	require.NoError(t, err)
	return store, mock
}

func TestSaveCheckpointExecutesInsert(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec("INSERT INTO checkpoints").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveCheckpoint(context.Background(), &model.Checkpoint{
		SessionID: "sess-1", Timestamp: time.Now(), BatchID: 0, TotalOperations: 3,
		Status: model.SessionInProgress, InputHash: "abc123", Metadata: map[string]any{},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordChangeExecutesInsert(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec("INSERT INTO change_log").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordChange(context.Background(), &model.ChangeLogEntry{
		SessionID: "sess-1", Timestamp: time.Now(), RowID: "1",
		ObjectType: model.ObjectBlock, OperationType: model.OpCreate, Success: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSessionCompletedClearsCreatedResources(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec("UPDATE checkpoints SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM created_resources").WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.MarkSessionCompleted(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldCheckpointsOnlyTargetsTerminalStatuses(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec("DELETE FROM checkpoints").
		WithArgs(sqlmock.AnyArg(), string(model.SessionCompleted), string(model.SessionFailed)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.CleanupOldCheckpoints(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
