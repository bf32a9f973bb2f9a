// Package storage provides SQLite-backed persistence for alert state and the
// cycle run log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/skywatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/skywatch/state.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "skywatch", "state.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if maxRuns < 1 {
		maxRuns = 1000
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := s.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_state (
			identifier  TEXT PRIMARY KEY,
			category    TEXT NOT NULL,
			cycle_id    TEXT NOT NULL,
			alerted_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycle_runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			live_count  INTEGER NOT NULL,
			match_count INTEGER NOT NULL,
			alerts_sent INTEGER NOT NULL,
			written     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_runs_started_at ON cycle_runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetAlertRecord returns the last alert delivered for identifier, or nil.
func (s *Storage) GetAlertRecord(identifier string) (*models.AlertRecord, error) {
	row := s.db.QueryRow(`
		SELECT identifier, category, cycle_id, alerted_at
		FROM alert_state WHERE identifier = ?`, identifier)

	var rec models.AlertRecord
	var alertedAtNano int64
	err := row.Scan(&rec.Identifier, &rec.Category, &rec.CycleID, &alertedAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert record: %w", err)
	}
	rec.AlertedAt = time.Unix(0, alertedAtNano)
	return &rec, nil
}

// SaveAlertRecord inserts or replaces the alert record for rec.Identifier.
func (s *Storage) SaveAlertRecord(rec *models.AlertRecord) error {
	if rec.Identifier == "" {
		return fmt.Errorf("alert record identifier must not be empty")
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO alert_state (identifier, category, cycle_id, alerted_at)
		VALUES (?,?,?,?)`,
		rec.Identifier, rec.Category, rec.CycleID, rec.AlertedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert record: %w", err)
	}
	return nil
}

// PruneAlertRecords deletes alert records older than cutoff.
func (s *Storage) PruneAlertRecords(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alert_state WHERE alerted_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune alert records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordRun appends a cycle to the run log and keeps the newest maxRuns rows.
func (s *Storage) RecordRun(run *models.CycleRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO cycle_runs
			(id, started_at, duration_ns, live_count, match_count, alerts_sent, written)
		VALUES (?,?,?,?,?,?,?)`,
		run.ID, run.StartedAt.UnixNano(), int64(run.Duration),
		run.LiveCount, run.MatchCount, run.AlertsSent, boolToInt(run.Written),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle run: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM cycle_runs WHERE id NOT IN (
			SELECT id FROM cycle_runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns); err != nil {
		return fmt.Errorf("failed to enforce run log cap: %w", err)
	}

	return tx.Commit()
}

// RecentRuns returns up to k runs, newest first.
func (s *Storage) RecentRuns(k int) ([]models.CycleRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, duration_ns, live_count, match_count, alerts_sent, written
		FROM cycle_runs ORDER BY started_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle runs: %w", err)
	}
	defer rows.Close()

	var runs []models.CycleRun
	for rows.Next() {
		var r models.CycleRun
		var startedAtNano, durationNano int64
		var written int
		if err := rows.Scan(&r.ID, &startedAtNano, &durationNano,
			&r.LiveCount, &r.MatchCount, &r.AlertsSent, &written); err != nil {
			return nil, fmt.Errorf("failed to scan cycle run: %w", err)
		}
		r.StartedAt = time.Unix(0, startedAtNano)
		r.Duration = time.Duration(durationNano)
		r.Written = written != 0
		runs = append(runs, r)
	}
	if runs == nil {
		runs = []models.CycleRun{}
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
