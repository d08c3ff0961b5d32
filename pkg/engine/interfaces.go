package engine

import (
	"context"
	"time"
)

// ApplyRun is the persisted record of one Apply call.
type ApplyRun struct {
	ID          string        `json:"id"`
	GuildID     string        `json:"guild_id"`
	Status      RunStatus     `json:"status"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`

	// Planned is the number of operations the diff asked for.
	Planned int `json:"planned"`

	Summary   ApplySummary `json:"summary"`
	Truncated bool         `json:"truncated"`
}

// RunRecorder persists apply runs and their per-operation results.
// Recorder failures are logged by the writer and never fail an apply.
type RunRecorder interface {
	// StartRun records a new run in RunStatusRunning.
	StartRun(ctx context.Context, run *ApplyRun) error

	// RecordResult appends the result of operation seq (zero-based).
	RecordResult(ctx context.Context, runID string, seq int, result ApplyResult) error

	// FinishRun stores the terminal status and summary.
	FinishRun(ctx context.Context, run *ApplyRun) error
}
