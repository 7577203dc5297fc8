// Package sqlite persists planning runs and their epochs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/elektrokombinacija/fleet-routing/internal/core"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	command TEXT NOT NULL,
	config_path TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	solver TEXT NOT NULL,
	seed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS epochs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	solver TEXT NOT NULL,
	sum_of_costs REAL NOT NULL,
	makespan INTEGER NOT NULL,
	expansions INTEGER NOT NULL,
	paths TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_epochs_run ON epochs(run_id, step);
`

// ErrRunNotFound means no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the planner or the simulator.
type Run struct {
	ID         string
	Command    string
	ConfigPath string
	Strategy   string
	Solver     string
	Seed       int64
	CreatedAt  time.Time
}

// Epoch is one joint planning round within a run.
type Epoch struct {
	RunID      string
	Step       int
	Strategy   string
	Solver     string
	SumOfCosts float64
	Makespan   int
	Expansions int
	Paths      []core.Path
	CreatedAt  time.Time
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CreateRun inserts run, generating an ID when empty, and returns it.
func (s *Store) CreateRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, command, config_path, strategy, solver, seed, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.ConfigPath, run.Strategy, run.Solver, run.Seed, run.CreatedAt.Unix(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var created int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, command, config_path, strategy, solver, seed, created_at FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.Command, &run.ConfigPath, &run.Strategy, &run.Solver, &run.Seed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	run.CreatedAt = time.Unix(created, 0).UTC()
	return run, nil
}

// RecordEpoch appends one planning round to its run.
func (s *Store) RecordEpoch(ctx context.Context, ep Epoch) error {
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	paths, err := json.Marshal(ep.Paths)
	if err != nil {
		return fmt.Errorf("encode epoch paths: %w", err)
	}
	soc := ep.SumOfCosts
	if math.IsInf(soc, 0) || math.IsNaN(soc) {
		soc = -1
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO epochs(run_id, step, strategy, solver, sum_of_costs, makespan, expansions, paths, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.RunID, ep.Step, ep.Strategy, ep.Solver, soc, ep.Makespan, ep.Expansions, string(paths), ep.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record epoch %d of run %s: %w", ep.Step, ep.RunID, err)
	}
	return nil
}

// ListEpochs returns a run's epochs in step order.
func (s *Store) ListEpochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, step, strategy, solver, sum_of_costs, makespan, expansions, paths, created_at
		FROM epochs WHERE run_id = ? ORDER BY step ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var ep Epoch
		var paths string
		var created int64
		if err := rows.Scan(
			&ep.RunID, &ep.Step, &ep.Strategy, &ep.Solver, &ep.SumOfCosts,
			&ep.Makespan, &ep.Expansions, &paths, &created,
		); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &ep.Paths); err != nil {
			return nil, fmt.Errorf("decode epoch paths: %w", err)
		}
		ep.CreatedAt = time.Unix(created, 0).UTC()
		epochs = append(epochs, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate epochs: %w", err)
	}
	return epochs, nil
}
