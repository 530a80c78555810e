// Package sqlite persists the history of estimation runs.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/growth.report/internal/growth"
	"github.com/banshee-data/growth.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// Store records estimation runs in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	// m is not closed: closing it would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Band is the stored statistics of one stretch.
type Band struct {
	Index     int
	Threshold float64
	growth.BandStatistics
}

// Run is one row of growth_runs with its bands.
type Run struct {
	ID          string
	Started     time.Time
	Finished    time.Time
	Status      growth.Status
	CRS         string
	Resolution  float64
	Concurrent  bool
	FileCount   int
	YearCount   int
	SampleCount int
	ModelPath   string
	Error       string
	Bands       []Band
}

// RunFromResult builds a Run from an estimation result.
func RunFromResult(res *growth.Result, crs string, resolution float64, concurrent bool, modelPath string) Run {
	run := Run{
		ID:         res.RunID,
		Started:    res.Started,
		Finished:   res.Finished,
		Status:     res.Status,
		CRS:        crs,
		Resolution: resolution,
		Concurrent: concurrent,
		FileCount:  len(res.Files),
		YearCount:  len(res.Groups),
		ModelPath:  modelPath,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if res.Samples != nil {
		run.SampleCount = res.Samples.Total()
	}
	if res.Model != nil {
		for i, b := range res.Model.Bands {
			run.Bands = append(run.Bands, Band{Index: i, Threshold: res.Model.Stretches[i], BandStatistics: b})
		}
	}
	return run
}

// RecordRun inserts run and its bands in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO growth_runs (
			run_id, started_unix_nanos, finished_unix_nanos, status, crs, resolution,
			concurrent, file_count, year_count, sample_count, model_path, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UnixNano(), run.Finished.UnixNano(), string(run.Status), run.CRS, run.Resolution,
		run.Concurrent, run.FileCount, run.YearCount, run.SampleCount, run.ModelPath, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, b := range run.Bands {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO growth_run_bands (
				run_id, stretch_index, threshold, count, mean, stddev, lower_pct, upper_pct
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, b.Index, b.Threshold, b.Count, b.Mean, b.StdDev, b.LowerPercentile, b.UpperPercentile,
		)
		if err != nil {
			return fmt.Errorf("failed to insert band %d of run %s: %w", b.Index, run.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	monitoring.Debugf("[history] recorded run %s (%s)", run.ID, run.Status)
	return nil
}

const runColumns = `run_id, started_unix_nanos, finished_unix_nanos, status, crs, resolution,
	concurrent, file_count, year_count, sample_count, model_path, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                 Run
		started, finished int64
		status            string
	)
	err := row.Scan(&r.ID, &started, &finished, &status, &r.CRS, &r.Resolution,
		&r.Concurrent, &r.FileCount, &r.YearCount, &r.SampleCount, &r.ModelPath, &r.Error)
	if err != nil {
		return Run{}, err
	}
	r.Started = time.Unix(0, started)
	r.Finished = time.Unix(0, finished)
	r.Status = growth.Status(status)
	return r, nil
}

// ListRuns returns the most recent runs, newest first, without bands. A
// limit of zero or less returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM growth_runs ORDER BY started_unix_nanos DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its bands.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM growth_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stretch_index, threshold, count, mean, stddev, lower_pct, upper_pct
		FROM growth_run_bands WHERE run_id = ? ORDER BY stretch_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load bands of run %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var b Band
		if err := rows.Scan(&b.Index, &b.Threshold, &b.Count, &b.Mean, &b.StdDev, &b.LowerPercentile, &b.UpperPercentile); err != nil {
			return nil, fmt.Errorf("failed to scan band: %w", err)
		}
		r.Bands = append(r.Bands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}
