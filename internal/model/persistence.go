package model

import "time"

// SessionStatus is the terminal/in-progress state of a reconciliation
// session as recorded in a Checkpoint.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Checkpoint is a persisted snapshot of progress through an ExecutionPlan,
// saved after each batch so an interrupted session can resume.
type Checkpoint struct {
	ID                  int64
	SessionID           string
	Timestamp           time.Time
	BatchID             int
	OperationIndex      int
	CompletedOperations int
	TotalOperations     int
	Status              SessionStatus
	InputHash           string
	Metadata            map[string]any
}

// CreatedResourceType enumerates the object types whose created ids are
// tracked for deferred-reference resolution across batches and resumes.
type CreatedResourceType string

const (
	CreatedBlock          CreatedResourceType = "block"
	CreatedNetwork        CreatedResourceType = "network"
	CreatedZone           CreatedResourceType = "zone"
	CreatedLocation       CreatedResourceType = "location"
	CreatedDevice         CreatedResourceType = "device"
	CreatedDeviceType     CreatedResourceType = "device_type"
	CreatedDeviceSubtype  CreatedResourceType = "device_subtype"
)

// CreatedResource records a resource id created during a session, keyed so
// later deferred references within the same or a resumed session can
// resolve it.
type CreatedResource struct {
	SessionID    string
	ResourceType CreatedResourceType
	ResourceKey  string
	BamID        int64
	CreatedAt    time.Time
}

// ChangeLogEntry is an append-only audit record of one attempted mutation.
type ChangeLogEntry struct {
	ID            int64
	SessionID     string
	Timestamp     time.Time
	RowID         string
	ObjectType    ObjectType
	OperationType OperationType
	Success       bool
	ResourceID    *int64
	ErrorMessage  string
	BeforeState   map[string]any
	AfterState    map[string]any
}
