package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parsyl/sqrl"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS samples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at    INTEGER NOT NULL,
	elevation   REAL NOT NULL,
	azimuth     REAL NOT NULL,
	orientation REAL NOT NULL,
	motor_angle REAL NOT NULL,
	iterations  INTEGER NOT NULL,
	converged   BOOLEAN NOT NULL
)`

var columns = []string{
	"id",
	"taken_at",
	"elevation",
	"azimuth",
	"orientation",
	"motor_angle",
	"iterations",
	"converged",
}

type (
	// Sample is one tracking cycle.
	Sample struct {
		ID          int64     `json:"id"`
		TakenAt     time.Time `json:"taken_at"`
		Elevation   float64   `json:"elevation"`
		Azimuth     float64   `json:"azimuth"`
		Orientation float64   `json:"orientation"`
		MotorAngle  float64   `json:"motor_angle"`
		Iterations  int       `json:"iterations"`
		Converged   bool      `json:"converged"`
	}

	// Store keeps the tracking history in a SQLite file.
	Store struct {
		db *sql.DB
	}

	QueryOption func(*sqrl.SelectBuilder)
)

// Open opens (creating if needed) the history database at path.
// ":memory:" gives a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a sample and returns it with its ID set.
func (s *Store) Record(ctx context.Context, smp Sample) (Sample, error) {
	if smp.TakenAt.IsZero() {
		smp.TakenAt = time.Now()
	}
	q, args, err := sqrl.Insert("samples").
		Columns(columns[1:]...).
		Values(smp.TakenAt.UnixMilli(), smp.Elevation, smp.Azimuth, smp.Orientation, smp.MotorAngle, smp.Iterations, smp.Converged).
		ToSql()
	if err != nil {
		return smp, err
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return smp, fmt.Errorf("insert sample: %w", err)
	}
	smp.ID, err = res.LastInsertId()
	return smp, err
}

// Recent returns samples newest first.
func (s *Store) Recent(ctx context.Context, limit int, opts ...QueryOption) ([]Sample, error) {
	sel := sqrl.Select(columns...).
		From("samples").
		OrderBy("id DESC")
	if limit > 0 {
		sel.Limit(uint64(limit))
	}
	for _, o := range opts {
		o(sel)
	}

	q, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var (
			smp Sample
			ms  int64
		)
		if err := rows.Scan(&smp.ID, &ms, &smp.Elevation, &smp.Azimuth, &smp.Orientation, &smp.MotorAngle, &smp.Iterations, &smp.Converged); err != nil {
			return nil, err
		}
		smp.TakenAt = time.UnixMilli(ms)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Count returns the number of stored samples.
func (s *Store) Count(ctx context.Context, opts ...QueryOption) (int, error) {
	sel := sqrl.Select("count(*)").From("samples")
	for _, o := range opts {
		o(sel)
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Since keeps samples taken at or after t.
func Since(t time.Time) QueryOption {
	return func(sel *sqrl.SelectBuilder) {
		sel.Where("taken_at >= ?", t.UnixMilli())
	}
}

// Unconverged keeps samples where the adjustment gave up.
func Unconverged(sel *sqrl.SelectBuilder) {
	sel.Where("converged = ?", false)
}
