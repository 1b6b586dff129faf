package mission

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore provides SQLite-backed mission storage so mission history
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the mission database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare database path: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		steps TEXT NOT NULL DEFAULT '[]',
		last_status TEXT,
		started_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mission_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mission_id TEXT NOT NULL REFERENCES missions(id),
		line TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mission_steps (
		mission_id TEXT NOT NULL REFERENCES missions(id),
		step_index INTEGER NOT NULL,
		PRIMARY KEY (mission_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_mission_logs_mission ON mission_logs(mission_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMission persists a newly created mission.
func (s *SQLiteStore) SaveMission(ctx context.Context, m *Mission) error {
	steps, err := json.Marshal(m.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO missions (id, project, steps, last_status, started_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Project, string(steps), m.LastStatus, m.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert mission: %w", err)
	}
	return nil
}

// AppendLog persists a log line and updates the mission's last status.
func (s *SQLiteStore) AppendLog(ctx context.Context, missionID, line string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE missions SET last_status = ? WHERE id = ?`, line, missionID)
	if err != nil {
		return fmt.Errorf("failed to update mission status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mission not found: %s", missionID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mission_logs (mission_id, line, created_at) VALUES (?, ?, ?)`,
		missionID, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log line: %w", err)
	}
	return nil
}

// MarkStepCompleted persists a completed step index.
func (s *SQLiteStore) MarkStepCompleted(ctx context.Context, missionID string, step int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mission_steps (mission_id, step_index) VALUES (?, ?)`,
		missionID, step,
	)
	if err != nil {
		return fmt.Errorf("failed to mark step completed: %w", err)
	}
	return nil
}

// GetMission retrieves a mission with its logs and completed steps.
func (s *SQLiteStore) GetMission(ctx context.Context, id string) (*Mission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project, steps, last_status, started_at FROM missions WHERE id = ?`, id)

	m, err := scanMission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("mission not found: %s", id)
		}
		return nil, err
	}

	if err := s.loadProgress(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMissions returns all missions, most recent first.
func (s *SQLiteStore) ListMissions(ctx context.Context) ([]*Mission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, steps, last_status, started_at FROM missions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query missions: %w", err)
	}
	defer rows.Close()

	var missions []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range missions {
		if err := s.loadProgress(ctx, m); err != nil {
			return nil, err
		}
	}
	return missions, nil
}

func (s *SQLiteStore) loadProgress(ctx context.Context, m *Mission) error {
	logRows, err := s.db.QueryContext(ctx,
		`SELECT line FROM mission_logs WHERE mission_id = ? ORDER BY id`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query logs: %w", err)
	}
	defer logRows.Close()
	for logRows.Next() {
		var line string
		if err := logRows.Scan(&line); err != nil {
			return err
		}
		m.Logs = append(m.Logs, line)
	}
	if err := logRows.Err(); err != nil {
		return err
	}

	stepRows, err := s.db.QueryContext(ctx,
		`SELECT step_index FROM mission_steps WHERE mission_id = ? ORDER BY step_index`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var step int
		if err := stepRows.Scan(&step); err != nil {
			return err
		}
		m.CompletedSteps = append(m.CompletedSteps, step)
	}
	return stepRows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMission(row rowScanner) (*Mission, error) {
	var (
		m          Mission
		stepsJSON  string
		lastStatus sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Project, &stepsJSON, &lastStatus, &m.StartedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &m.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	m.LastStatus = lastStatus.String
	return &m, nil
}
