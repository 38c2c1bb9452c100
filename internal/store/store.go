// Package store persists analysis runs and their per-fix assignments in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Store wraps the results database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serialises writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Run is one stored analysis of one individual.
type Run struct {
	ID           string
	Individual   string
	Fixes        int
	Repetitions  int
	Workers      int
	Seed         uint64
	Ordering     habitat.Ordering
	BufferMeters float64
	Sigma        float64
	Beta         float64
	LogLik       float64
	CreatedAt    time.Time
}

// Row is the stored result for one fix.
type Row struct {
	FixIndex     int
	FixID        string
	Time         time.Time
	Raw          habitat.Category
	Predicted    habitat.Category
	Majority     habitat.Category
	Distribution map[habitat.Category]float64
	Votes        int
	Rejected     int
	Degenerate   bool
}

// InsertRun stores run and its rows in one transaction. A missing ID is
// filled with a new UUID and a zero CreatedAt with the current time; both
// are written back to run.
func (s *Store) InsertRun(ctx context.Context, run *Run, rows []Row) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, individual, fixes, repetitions, workers, seed, ordering,
			buffer_meters, sigma, beta, log_likelihood, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Individual, run.Fixes, run.Repetitions, run.Workers, int64(run.Seed),
		run.Ordering.String(), run.BufferMeters, run.Sigma, run.Beta, run.LogLik,
		run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assignments (run_id, fix_index, fix_id, fix_time, raw_label, predicted_label,
			majority, distribution, votes, rejected, degenerate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare assignment insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var dist sql.NullString
		if r.Distribution != nil {
			b, err := json.Marshal(r.Distribution)
			if err != nil {
				return fmt.Errorf("fix %d: marshal distribution: %w", r.FixIndex, err)
			}
			dist = sql.NullString{String: string(b), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, run.ID, r.FixIndex, r.FixID, r.Time.UTC().Format(time.RFC3339Nano),
			string(r.Raw), string(r.Predicted), string(r.Majority), dist, r.Votes, r.Rejected, r.Degenerate)
		if err != nil {
			return fmt.Errorf("insert fix %d: %w", r.FixIndex, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, individual, fixes, repetitions, workers, seed, ordering,
	buffer_meters, sigma, beta, log_likelihood, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		seed     int64
		ordering string
		created  string
	)
	err := sc.Scan(&r.ID, &r.Individual, &r.Fixes, &r.Repetitions, &r.Workers, &seed, &ordering,
		&r.BufferMeters, &r.Sigma, &r.Beta, &r.LogLik, &created)
	if err != nil {
		return nil, err
	}
	r.Seed = uint64(seed)
	if r.Ordering, err = habitat.ParseOrdering(ordering); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("run %s: created_at: %w", r.ID, err)
	}
	return &r, nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns stored runs, newest first. A non-empty individual
// restricts the list to that individual.
func (s *Store) ListRuns(ctx context.Context, individual string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR individual = ?
		ORDER BY created_at DESC, run_id`, individual, individual)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListAssignments returns the rows of a run in fix order.
func (s *Store) ListAssignments(ctx context.Context, runID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fix_index, fix_id, fix_time, raw_label, predicted_label, majority,
			distribution, votes, rejected, degenerate
		FROM assignments WHERE run_id = ? ORDER BY fix_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                        Row
			fixTime                  string
			raw, predicted, majority string
			dist                     sql.NullString
		)
		if err := rows.Scan(&r.FixIndex, &r.FixID, &fixTime, &raw, &predicted, &majority,
			&dist, &r.Votes, &r.Rejected, &r.Degenerate); err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		if r.Time, err = time.Parse(time.RFC3339Nano, fixTime); err != nil {
			return nil, fmt.Errorf("fix %d: time: %w", r.FixIndex, err)
		}
		r.Raw, r.Predicted, r.Majority = habitat.Category(raw), habitat.Category(predicted), habitat.Category(majority)
		if dist.Valid {
			if err := json.Unmarshal([]byte(dist.String), &r.Distribution); err != nil {
				return nil, fmt.Errorf("fix %d: distribution: %w", r.FixIndex, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its assignments.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
