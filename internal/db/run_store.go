package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cloudmerge/internal/bench"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("benchmark run not found")

// RunSummary is the persisted header of a benchmark run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	DeviceIndex  int           `json:"device_index"`
	SampleCount  int           `json:"sample_count"`
	SkippedCount int           `json:"skipped_count"`
	ExecMeanMs   float64       `json:"exec_mean_ms"`
	ExecStdDevMs float64       `json:"exec_stddev_ms"`
	CreatedAt    int64         `json:"created_at"`
}

// RunStore provides persistence for benchmark results.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// InsertResult persists a run with its groups and samples in one
// transaction. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertResult(res *bench.Result) error {
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO bench_runs (
			run_id, started_at, elapsed_ns, device_index, sample_count,
			skipped_count, exec_mean_ms, exec_std_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UnixNano(), int64(res.Elapsed), res.DeviceIndex, len(res.Samples),
		len(res.Skipped), res.Execute.Mean, res.Execute.StdDev, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, g := range res.Groups {
		if _, err := tx.Exec(`
			INSERT INTO bench_groups (run_id, vehicles, samples, mean_ms, stddev_ms, min_ms, max_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, g.Vehicles, g.Samples, g.Mean, g.StdDev, g.Min, g.Max,
		); err != nil {
			return fmt.Errorf("failed to insert group %d: %w", g.Vehicles, err)
		}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO bench_samples (run_id, frame_id, iteration, vehicles, points, merge_ns, execute_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()
	for _, smp := range res.Samples {
		if _, err := stmt.Exec(res.RunID, smp.FrameID, smp.Iteration, smp.Vehicles, smp.Points,
			int64(smp.Merge), int64(smp.Execute)); err != nil {
			return fmt.Errorf("failed to insert sample %s/%d: %w", smp.FrameID, smp.Iteration, err)
		}
	}

	return tx.Commit()
}

const runColumns = `run_id, started_at, elapsed_ns, device_index, sample_count,
	skipped_count, exec_mean_ms, exec_std_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunSummary, error) {
	var r RunSummary
	var startedAt, elapsed int64
	if err := row.Scan(&r.RunID, &startedAt, &elapsed, &r.DeviceIndex, &r.SampleCount,
		&r.SkippedCount, &r.ExecMeanMs, &r.ExecStdDevMs, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAt)
	r.Elapsed = time.Duration(elapsed)
	return &r, nil
}

// GetRun returns the summary of one run.
func (s *RunStore) GetRun(runID string) (*RunSummary, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM bench_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM bench_runs
		ORDER BY started_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListGroups returns the per-vehicle-count statistics of a run.
func (s *RunStore) ListGroups(runID string) ([]bench.GroupStats, error) {
	rows, err := s.db.Query(`
		SELECT vehicles, samples, mean_ms, stddev_ms, min_ms, max_ms
		FROM bench_groups WHERE run_id = ? ORDER BY vehicles`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []bench.GroupStats
	for rows.Next() {
		var g bench.GroupStats
		if err := rows.Scan(&g.Vehicles, &g.Samples, &g.Mean, &g.StdDev, &g.Min, &g.Max); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListSamples returns the raw timings of a run in frame order.
func (s *RunStore) ListSamples(runID string) ([]bench.Sample, error) {
	rows, err := s.db.Query(`
		SELECT frame_id, iteration, vehicles, points, merge_ns, execute_ns
		FROM bench_samples WHERE run_id = ? ORDER BY frame_id, iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []bench.Sample
	for rows.Next() {
		var smp bench.Sample
		var mergeNs, execNs int64
		if err := rows.Scan(&smp.FrameID, &smp.Iteration, &smp.Vehicles, &smp.Points, &mergeNs, &execNs); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		smp.Merge = time.Duration(mergeNs)
		smp.Execute = time.Duration(execNs)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its groups and samples.
func (s *RunStore) DeleteRun(runID string) error {
	res, err := s.db.Exec(`DELETE FROM bench_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
