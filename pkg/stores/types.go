package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Audit actions written by the store.
const (
	AuditRunStarted   = "run.started"
	AuditRunFinished  = "run.finished"
	AuditStateChanged = "state.changed"
)

// OperationRecord is one persisted operation result of an apply run.
type OperationRecord struct {
	RunID      string             `json:"run_id"`
	Seq        int                `json:"seq"`
	Result     engine.ApplyResult `json:"result"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// StateSnapshot is a stored copy of an observed guild state.
type StateSnapshot struct {
	ID      string    `json:"id"`
	GuildID string    `json:"guild_id"`
	RunID   *string   `json:"run_id,omitempty"`
	State   string    `json:"state"` // JSON blob
	Hash    string    `json:"hash"`  // SHA256 of State, for drift detection
	TakenAt time.Time `json:"taken_at"`
}

// Decode unmarshals the stored state.
func (s *StateSnapshot) Decode() (*engine.ServerState, error) {
	return decodeState(s.State)
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g., "run.started", "state.changed"
	Actor     string    `json:"actor"`               // user or system identifier
	TargetID  *string   `json:"target_id,omitempty"` // run or guild ID
	Details   *string   `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	GuildID string
	Status  engine.RunStatus
	Limit   int
	Offset  int
}

// Store defines the interface for the persistence layer
type Store interface {
	engine.RunRecorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run history
	GetRun(ctx context.Context, id string) (*engine.ApplyRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*engine.ApplyRun, error)
	ListResults(ctx context.Context, runID string) ([]*OperationRecord, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)

	// State snapshots
	SaveSnapshot(ctx context.Context, state *engine.ServerState, runID *string) (*StateSnapshot, bool, error)
	LatestSnapshot(ctx context.Context, guildID string) (*StateSnapshot, error)
	ListSnapshots(ctx context.Context, guildID string, limit, offset int) ([]*StateSnapshot, error)

	// Audit operations
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
