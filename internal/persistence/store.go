// Package persistence implements the checkpoint store and change log over
// database/sql via sqlx, backed by an embedded sqlite file by default with
// pluggable postgres drivers for operators centralizing state across hosts.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	batch_id INTEGER NOT NULL,
	operation_index INTEGER NOT NULL,
	completed_operations INTEGER NOT NULL,
	total_operations INTEGER NOT NULL,
	status TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_timestamp ON checkpoints(timestamp);

CREATE TABLE IF NOT EXISTS created_resources (
	session_id TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_key TEXT NOT NULL,
	bam_id INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (session_id, resource_type, resource_key)
);

CREATE TABLE IF NOT EXISTS change_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	row_id TEXT NOT NULL,
	object_type TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	resource_id INTEGER,
	error_message TEXT,
	before_state TEXT,
	after_state TEXT
);
CREATE INDEX IF NOT EXISTS idx_change_log_session ON change_log(session_id);
`

// Store is the persistence contract the executor depends on.
type Store interface {
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
	GetLatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error)
	FindResumableSession(ctx context.Context, inputHash string) (*model.Checkpoint, error)
	MarkSessionCompleted(ctx context.Context, sessionID string) error
	MarkSessionFailed(ctx context.Context, sessionID, errMsg string) error
	SaveCreatedResource(ctx context.Context, r *model.CreatedResource) error
	LoadCreatedResources(ctx context.Context, sessionID string) (map[model.CreatedResourceType]map[string]int64, error)
	ClearCreatedResources(ctx context.Context, sessionID string) error
	CleanupOldCheckpoints(ctx context.Context, retentionDays int) (int64, error)
	RecordChange(ctx context.Context, entry *model.ChangeLogEntry) error
	GetSessionEntries(ctx context.Context, sessionID string) ([]model.ChangeLogEntry, error)
	Close() error
}

// SQLStore implements Store over database/sql via sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (and migrates) a file-backed sqlite store at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "open sqlite store")
	}
	db.SetMaxOpenConns(1) // single writer: sqlite serializes writes at the connection-pool level
	return newStore(db)
}

// OpenPostgres opens (and migrates) a postgres-backed store via pgx's
// database/sql driver, for operators centralizing checkpoints across hosts.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "open postgres store")
	}
	return newStore(db)
}

func newStore(db *sqlx.DB) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "ping persistence store")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "apply persistence schema")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	meta, err := json.Marshal(cp.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, timestamp, batch_id, operation_index, completed_operations, total_operations, status, input_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.SessionID, cp.Timestamp, cp.BatchID, cp.OperationIndex, cp.CompletedOperations, cp.TotalOperations, cp.Status, cp.InputHash, string(meta))
	if err != nil {
		return recerr.Wrap(recerr.KindServer, err, "save checkpoint")
	}
	return nil
}

type checkpointRow struct {
	ID                  int64     `db:"id"`
	SessionID           string    `db:"session_id"`
	Timestamp           time.Time `db:"timestamp"`
	BatchID             int       `db:"batch_id"`
	OperationIndex      int       `db:"operation_index"`
	CompletedOperations int       `db:"completed_operations"`
	TotalOperations     int       `db:"total_operations"`
	Status              string    `db:"status"`
	InputHash           string    `db:"input_hash"`
	Metadata            sql.NullString `db:"metadata"`
}

func (r checkpointRow) toModel() *model.Checkpoint {
	cp := &model.Checkpoint{
		ID: r.ID, SessionID: r.SessionID, Timestamp: r.Timestamp, BatchID: r.BatchID,
		OperationIndex: r.OperationIndex, CompletedOperations: r.CompletedOperations,
		TotalOperations: r.TotalOperations, Status: model.SessionStatus(r.Status), InputHash: r.InputHash,
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		_ = json.Unmarshal([]byte(r.Metadata.String), &cp.Metadata)
	}
	return cp
}

func (s *SQLStore) GetLatestCheckpoint(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, session_id, timestamp, batch_id, operation_index, completed_operations, total_operations, status, input_hash, metadata
		FROM checkpoints WHERE session_id = ? ORDER BY timestamp DESC LIMIT 1`, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "get latest checkpoint")
	}
	return row.toModel(), nil
}

func (s *SQLStore) FindResumableSession(ctx context.Context, inputHash string) (*model.Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, session_id, timestamp, batch_id, operation_index, completed_operations, total_operations, status, input_hash, metadata
		FROM checkpoints WHERE input_hash = ? AND status = ? ORDER BY timestamp DESC LIMIT 1`,
		inputHash, model.SessionInProgress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "find resumable session")
	}
	return row.toModel(), nil
}

func (s *SQLStore) MarkSessionCompleted(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE checkpoints SET status = ? WHERE session_id = ?`, model.SessionCompleted, sessionID); err != nil {
		return recerr.Wrap(recerr.KindServer, err, "mark session completed")
	}
	return s.ClearCreatedResources(ctx, sessionID)
}

func (s *SQLStore) MarkSessionFailed(ctx context.Context, sessionID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE checkpoints SET status = ? WHERE session_id = ?`, model.SessionFailed, sessionID)
	if err != nil {
		return recerr.Wrap(recerr.KindServer, err, "mark session failed")
	}
	return nil
}

func (s *SQLStore) SaveCreatedResource(ctx context.Context, r *model.CreatedResource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO created_resources (session_id, resource_type, resource_key, bam_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, resource_type, resource_key) DO UPDATE SET bam_id = excluded.bam_id, created_at = excluded.created_at`,
		r.SessionID, r.ResourceType, r.ResourceKey, r.BamID, r.CreatedAt)
	if err != nil {
		return recerr.Wrap(recerr.KindServer, err, "save created resource")
	}
	return nil
}

func (s *SQLStore) LoadCreatedResources(ctx context.Context, sessionID string) (map[model.CreatedResourceType]map[string]int64, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT resource_type, resource_key, bam_id FROM created_resources WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "load created resources")
	}
	defer rows.Close()

	out := map[model.CreatedResourceType]map[string]int64{}
	for rows.Next() {
		var resourceType, resourceKey string
		var bamID int64
		if err := rows.Scan(&resourceType, &resourceKey, &bamID); err != nil {
			return nil, err
		}
		t := model.CreatedResourceType(resourceType)
		if out[t] == nil {
			out[t] = map[string]int64{}
		}
		out[t][resourceKey] = bamID
	}
	return out, rows.Err()
}

func (s *SQLStore) ClearCreatedResources(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM created_resources WHERE session_id = ?`, sessionID)
	if err != nil {
		return recerr.Wrap(recerr.KindServer, err, "clear created resources")
	}
	return nil
}

func (s *SQLStore) CleanupOldCheckpoints(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE timestamp < ? AND status IN (?, ?)`,
		cutoff, model.SessionCompleted, model.SessionFailed)
	if err != nil {
		return 0, recerr.Wrap(recerr.KindServer, err, "cleanup old checkpoints")
	}
	return result.RowsAffected()
}

func (s *SQLStore) RecordChange(ctx context.Context, entry *model.ChangeLogEntry) error {
	before, err := json.Marshal(entry.BeforeState)
	if err != nil {
		return err
	}
	after, err := json.Marshal(entry.AfterState)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO change_log (session_id, timestamp, row_id, object_type, operation_type, success, resource_id, error_message, before_state, after_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Timestamp, entry.RowID, entry.ObjectType, entry.OperationType,
		entry.Success, entry.ResourceID, entry.ErrorMessage, string(before), string(after))
	if err != nil {
		return recerr.Wrap(recerr.KindServer, err, "record change log entry")
	}
	return nil
}

func (s *SQLStore) GetSessionEntries(ctx context.Context, sessionID string) ([]model.ChangeLogEntry, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, session_id, timestamp, row_id, object_type, operation_type, success, resource_id, error_message, before_state, after_state
		FROM change_log WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "get session entries")
	}
	defer rows.Close()

	var out []model.ChangeLogEntry
	for rows.Next() {
		var e model.ChangeLogEntry
		var before, after sql.NullString
		var resourceID sql.NullInt64
		var objectType, operationType string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.RowID, &objectType, &operationType,
			&e.Success, &resourceID, &e.ErrorMessage, &before, &after); err != nil {
			return nil, err
		}
		e.ObjectType = model.ObjectType(objectType)
		e.OperationType = model.OperationType(operationType)
		if resourceID.Valid {
			id := resourceID.Int64
			e.ResourceID = &id
		}
		if before.Valid && before.String != "" {
			_ = json.Unmarshal([]byte(before.String), &e.BeforeState)
		}
		if after.Valid && after.String != "" {
			_ = json.Unmarshal([]byte(after.String), &e.AfterState)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
