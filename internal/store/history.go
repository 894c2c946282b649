// Package store persists sweep history in a local SQLite database, so
// past trials can be listed and compared across runs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vishalbelsare/LibMultiLabel/internal/trial"
)

// Store is the trial history database. All methods are safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent trials.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		data_name TEXT NOT NULL DEFAULT '',
		model_name TEXT NOT NULL DEFAULT '',
		val_metric TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trials (
		id TEXT PRIMARY KEY,
		experiment_id INTEGER NOT NULL,
		trial_index INTEGER NOT NULL,
		repeat INTEGER NOT NULL,
		params TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		metrics TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL DEFAULT '',
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_trials_experiment ON trials(experiment_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Experiment is one recorded sweep.
type Experiment struct {
	ID        int64
	Name      string
	DataName  string
	ModelName string
	ValMetric string
	CreatedAt time.Time
}

// CreateExperiment registers a sweep and returns its id. Recording
// under an existing name reuses that experiment and refreshes its
// metadata, so a resumed sweep extends its own history.
func (s *Store) CreateExperiment(name, dataName, modelName, valMetric string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO experiments (name, data_name, model_name, val_metric, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			data_name = excluded.data_name,
			model_name = excluded.model_name,
			val_metric = excluded.val_metric`,
		name, dataName, modelName, valMetric, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to create experiment: %w", err)
	}
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM experiments WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up experiment: %w", err)
	}
	return id, nil
}

// ExperimentByName returns an experiment, or nil when the name is
// unknown.
func (s *Store) ExperimentByName(name string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, name, data_name, model_name, val_metric, created_at
		 FROM experiments WHERE name = ?`, name)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return exp, err
}

// ListExperiments returns all experiments, newest first.
func (s *Store) ListExperiments() ([]Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, name, data_name, model_name, val_metric, created_at
		 FROM experiments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(r rowScanner) (*Experiment, error) {
	var exp Experiment
	var created string
	if err := r.Scan(&exp.ID, &exp.Name, &exp.DataName, &exp.ModelName, &exp.ValMetric, &created); err != nil {
		return nil, err
	}
	exp.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &exp, nil
}

// RecordTrial upserts one trial's current state under an experiment.
// Schedulers call it on every state change, so the stored row always
// reflects the latest status.
func (s *Store) RecordTrial(experimentID int64, t *trial.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	metrics := []byte("{}")
	if t.Metrics != nil {
		if metrics, err = json.Marshal(t.Metrics); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO trials (id, experiment_id, trial_index, repeat, params, status, metrics, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			metrics = excluded.metrics,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		t.ID, experimentID, t.Index, t.Repeat, string(params), string(t.Status),
		string(metrics), t.Err, formatTime(t.StartedAt), formatTime(t.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to record trial: %w", err)
	}
	return nil
}

// TrialRow is one stored trial.
type TrialRow struct {
	ID           string
	ExperimentID int64
	Index        int
	Repeat       int
	Params       []string
	Status       trial.Status
	Metrics      map[string]float64
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

const trialColumns = `id, experiment_id, trial_index, repeat, params, status, metrics, error, started_at, finished_at`

// ListTrials returns an experiment's trials in combination order.
func (s *Store) ListTrials(experimentID int64) ([]TrialRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+trialColumns+` FROM trials
		 WHERE experiment_id = ?
		 ORDER BY trial_index, repeat`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRow
	for rows.Next() {
		tr, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// BestTrial returns the finished trial that optimizes the given metric,
// or nil when none qualifies. mode is metrics.ModeMin or ModeMax.
func (s *Store) BestTrial(experimentID int64, metric, mode string) (*TrialRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := "DESC"
	if mode == "min" {
		order = "ASC"
	}
	// The metric name is user input; it reaches the query only as a
	// bound JSON path, never as SQL text.
	path := fmt.Sprintf(`$.%q`, metric)
	row := s.db.QueryRow(
		`SELECT `+trialColumns+` FROM trials
		 WHERE experiment_id = ? AND status = ? AND json_extract(metrics, ?) IS NOT NULL
		 ORDER BY json_extract(metrics, ?) `+order+`, trial_index, repeat
		 LIMIT 1`,
		experimentID, string(trial.StatusFinished), path, path)
	tr, err := scanTrial(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tr, err
}

func scanTrial(r rowScanner) (*TrialRow, error) {
	var tr TrialRow
	var params, metrics, status, started, finished string
	if err := r.Scan(&tr.ID, &tr.ExperimentID, &tr.Index, &tr.Repeat, &params,
		&status, &metrics, &tr.Error, &started, &finished); err != nil {
		return nil, err
	}
	tr.Status = trial.Status(status)
	if err := json.Unmarshal([]byte(params), &tr.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &tr.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	tr.StartedAt = parseTime(started)
	tr.FinishedAt = parseTime(finished)
	return &tr, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
