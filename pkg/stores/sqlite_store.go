package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Actor is written to audit entries. Defaults to "guildform".
	Actor string
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Actor == "" {
		cfg.Actor = "guildform"
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.cfg.Path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// StartRun records a new apply run and its audit entry.
func (s *SQLiteStore) StartRun(ctx context.Context, run *engine.ApplyRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	status := run.Status
	if status == "" {
		status = engine.RunStatusRunning
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO apply_runs (id, guild_id, status, dry_run, planned, started_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, run.GuildID, string(status), run.DryRun, run.Planned, run.StartedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return s.audit(ctx, tx, AuditRunStarted, run.ID, map[string]interface{}{
			"guild_id": run.GuildID,
			"dry_run":  run.DryRun,
			"planned":  run.Planned,
		})
	})
}

// RecordResult appends the result of operation seq to a run.
func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, seq int, result engine.ApplyResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_results (
			run_id, seq, operation, resource_type, resource_name, resource_id,
			success, error, error_code, attempts, duration_ns, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		string(result.Operation),
		string(result.ResourceType),
		result.ResourceName,
		result.ResourceID,
		result.Success,
		result.Error,
		result.ErrorCode,
		result.Attempts,
		int64(result.Duration),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record result %d of run %s: %w", seq, runID, err)
	}
	return nil
}

// FinishRun stores the terminal status and summary of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *engine.ApplyRun) error {
	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE apply_runs
			SET status = ?, total = ?, succeeded = ?, failed = ?, truncated = ?,
				duration_ns = ?, completed_at = ?
			WHERE id = ?
		`,
			string(run.Status),
			run.Summary.Total,
			run.Summary.Succeeded,
			run.Summary.Failed,
			run.Truncated,
			int64(run.Duration),
			completedAt,
			run.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		if err := expectRow(result, "run", run.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, AuditRunFinished, run.ID, map[string]interface{}{
			"status":    run.Status,
			"summary":   run.Summary,
			"truncated": run.Truncated,
		})
	})
}

const runColumns = `id, guild_id, status, dry_run, planned, total, succeeded, failed,
	truncated, duration_ns, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.ApplyRun, error) {
	var (
		run      engine.ApplyRun
		status   string
		duration int64
	)
	err := row.Scan(
		&run.ID,
		&run.GuildID,
		&status,
		&run.DryRun,
		&run.Planned,
		&run.Summary.Total,
		&run.Summary.Succeeded,
		&run.Summary.Failed,
		&run.Truncated,
		&duration,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = engine.RunStatus(status)
	run.Duration = time.Duration(duration)
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.ApplyRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM apply_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*engine.ApplyRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	var guildID, status *string
	if filter.GuildID != "" {
		guildID = &filter.GuildID
	}
	if filter.Status != "" {
		st := string(filter.Status)
		status = &st
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM apply_runs
		WHERE (? IS NULL OR guild_id = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, guildID, guildID, status, status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.ApplyRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListResults returns the operation results of a run in execution order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, operation, resource_type, resource_name, resource_id,
			   success, error, error_code, attempts, duration_ns, recorded_at
		FROM operation_results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	records := []*OperationRecord{}
	for rows.Next() {
		var (
			rec          OperationRecord
			operation    string
			resourceType string
			duration     int64
		)
		err := rows.Scan(
			&rec.RunID,
			&rec.Seq,
			&operation,
			&resourceType,
			&rec.Result.ResourceName,
			&rec.Result.ResourceID,
			&rec.Result.Success,
			&rec.Result.Error,
			&rec.Result.ErrorCode,
			&rec.Result.Attempts,
			&duration,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Result.Operation = engine.OperationType(operation)
		rec.Result.ResourceType = engine.ResourceType(resourceType)
		rec.Result.Duration = time.Duration(duration)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return records, nil
}

// DeleteRunsBefore deletes runs started before the cutoff together with
// their results. Snapshots referencing them are kept.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM apply_runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// SaveSnapshot stores state unless it matches the latest snapshot of the
// guild. The boolean reports whether a new snapshot was written; a change
// after the first snapshot is audited as state.changed.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, state *engine.ServerState, runID *string) (*StateSnapshot, bool, error) {
	if state == nil {
		return nil, false, fmt.Errorf("state is required")
	}
	data, hash, err := encodeState(state)
	if err != nil {
		return nil, false, err
	}

	latest, err := s.LatestSnapshot(ctx, state.ID)
	switch {
	case err == nil && latest.Hash == hash:
		return latest, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	takenAt := state.FetchedAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	snap := &StateSnapshot{
		ID:      uuid.New().String(),
		GuildID: state.ID,
		RunID:   runID,
		State:   data,
		Hash:    hash,
		TakenAt: takenAt.UTC(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO state_snapshots (id, guild_id, run_id, state, hash, taken_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.ID, snap.GuildID, snap.RunID, snap.State, snap.Hash, snap.TakenAt)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		if latest == nil {
			return nil
		}
		return s.audit(ctx, tx, AuditStateChanged, state.ID, map[string]interface{}{
			"previous": latest.ID,
			"snapshot": snap.ID,
		})
	})
	if err != nil {
		return nil, false, err
	}

	return snap, true, nil
}

const snapshotColumns = `id, guild_id, run_id, state, hash, taken_at`

func scanSnapshot(row rowScanner) (*StateSnapshot, error) {
	snap := &StateSnapshot{}
	err := row.Scan(
		&snap.ID,
		&snap.GuildID,
		&snap.RunID,
		&snap.State,
		&snap.Hash,
		&snap.TakenAt,
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LatestSnapshot returns the newest snapshot of a guild.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, guildID string) (*StateSnapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM state_snapshots
		WHERE guild_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT 1
	`, guildID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot of guild %s: %w", guildID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots lists snapshots of a guild, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, guildID string, limit, offset int) ([]*StateSnapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM state_snapshots
		WHERE guild_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []*StateSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snaps, nil
}

// encodeState serializes state without its fetch time, so two reads of an
// unchanged guild hash the same.
func encodeState(state *engine.ServerState) (string, string, error) {
	clean := *state
	clean.FetchedAt = time.Time{}
	data, err := json.Marshal(&clean)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode state: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(data), hex.EncodeToString(sum[:]), nil
}

func decodeState(data string) (*engine.ServerState, error) {
	var state engine.ServerState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// CreateAuditEntry creates a new audit log entry
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	if entry.Actor == "" {
		entry.Actor = s.cfg.Actor
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`,
		entry.Action,
		entry.Actor,
		entry.TargetID,
		entry.Details,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry ID: %w", err)
	}

	entry.ID = id
	return nil
}

func (s *SQLiteStore) audit(ctx context.Context, tx *sql.Tx, action, targetID string, details map[string]interface{}) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit (action, actor, target_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, action, s.cfg.Actor, targetID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries lists audit entries with optional filters and pagination
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, action, actor, target_id, details, timestamp
		FROM audit
		WHERE (? IS NULL OR action = ?)
		  AND (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, action, action, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.Actor,
			&entry.TargetID,
			&entry.Details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
