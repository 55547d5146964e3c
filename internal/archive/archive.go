// Package archive persists acquired traces in a SQLite database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rjboer/gofpc/internal/fpc"
	"github.com/rjboer/gofpc/internal/telemetry"
)

// ErrNotFound is returned by Get for an unknown record ID.
var ErrNotFound = errors.New("archive: record not found")

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS traces (
	id         TEXT PRIMARY KEY,
	taken_at   INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	source     TEXT NOT NULL,
	points     INTEGER NOT NULL,
	start_hz   REAL,
	stop_hz    REAL,
	name_x     TEXT NOT NULL,
	unit_x     TEXT NOT NULL,
	name_y     TEXT NOT NULL,
	unit_y     TEXT NOT NULL,
	x          TEXT NOT NULL,
	y          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_taken_at ON traces(taken_at);
`

const (
	insertTraceSQL = `INSERT INTO traces
	(id, taken_at, seq, source, points, start_hz, stop_hz, name_x, unit_x, name_y, unit_y, x, y)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectSummariesSQL = `SELECT id, taken_at, seq, source, points, start_hz, stop_hz, unit_y
	FROM traces ORDER BY taken_at DESC, rowid DESC LIMIT ?`
	selectRecordSQL = `SELECT id, taken_at, seq, source, name_x, unit_x, name_y, unit_y, x, y
	FROM traces WHERE id = ?`
)

// Summary describes a stored trace without its samples.
type Summary struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Index     int       `json:"index" yaml:"index"`
	Source    string    `json:"source" yaml:"source"`
	Points    int       `json:"points" yaml:"points"`
	StartHz   float64   `json:"start_hz" yaml:"start_hz"`
	StopHz    float64   `json:"stop_hz" yaml:"stop_hz"`
	UnitY     string    `json:"unit_y" yaml:"unit_y"`
}

// Record is a stored sample.
type Record struct {
	ID               string `json:"id" yaml:"id"`
	telemetry.Sample `yaml:",inline"`
}

// Store is a SQLite trace archive. It implements telemetry.Reporter.
// The database is opened and its schema created on first use.
type Store struct {
	path string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ telemetry.Reporter = (*Store)(nil)

// Open returns an archive backed by the database file at path.
func Open(path string) *Store {
	return &Store{path: path}
}

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.path, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// Report saves sample s under a fresh ID.
func (s *Store) Report(ctx context.Context, sample telemetry.Sample) error {
	_, err := s.Save(ctx, sample)
	return err
}

// Save stores sample and returns its record ID.
func (s *Store) Save(ctx context.Context, sample telemetry.Sample) (id string, err error) {
	db, err := s.getDB()
	if err != nil {
		return "", err
	}

	tr := sample.Trace
	x, err := json.Marshal(nonNil(tr.X))
	if err != nil {
		return "", fmt.Errorf("marshaling x: %w", err)
	}
	y, err := json.Marshal(nonNil(tr.Y))
	if err != nil {
		return "", fmt.Errorf("marshaling y: %w", err)
	}
	var start, stop sql.NullFloat64
	if len(tr.X) > 0 {
		start = sql.NullFloat64{Float64: tr.X[0], Valid: true}
		stop = sql.NullFloat64{Float64: tr.X[len(tr.X)-1], Valid: true}
	}
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	stmt, err := db.PrepareContext(ctx, insertTraceSQL)
	if err != nil {
		return "", fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	id = uuid.NewString()
	if _, err = stmt.ExecContext(ctx, id, ts.UnixNano(), sample.Index, sample.Source, tr.Len(),
		start, stop, tr.NameX, tr.UnitX, tr.NameY, tr.UnitY, string(x), string(y)); err != nil {
		return "", fmt.Errorf("inserting trace: %w", err)
	}
	return id, nil
}

// List returns up to limit summaries, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) (out []Summary, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, selectSummariesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying traces: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			sum         Summary
			ns          int64
			start, stop sql.NullFloat64
		)
		if err = rows.Scan(&sum.ID, &ns, &sum.Index, &sum.Source, &sum.Points, &start, &stop, &sum.UnitY); err != nil {
			return nil, fmt.Errorf("scanning trace: %w", err)
		}
		sum.Timestamp = time.Unix(0, ns)
		sum.StartHz, sum.StopHz = start.Float64, stop.Float64
		out = append(out, sum)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads a full record.
func (s *Store) Get(ctx context.Context, id string) (rec Record, err error) {
	db, err := s.getDB()
	if err != nil {
		return Record{}, err
	}

	var (
		ns   int64
		x, y string
		tr   fpc.Trace
	)
	err = db.QueryRowContext(ctx, selectRecordSQL, id).Scan(&rec.ID, &ns, &rec.Index, &rec.Source,
		&tr.NameX, &tr.UnitX, &tr.NameY, &tr.UnitY, &x, &y)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("querying trace: %w", err)
	}
	if err = json.Unmarshal([]byte(x), &tr.X); err != nil {
		return Record{}, fmt.Errorf("decoding x: %w", err)
	}
	if err = json.Unmarshal([]byte(y), &tr.Y); err != nil {
		return Record{}, fmt.Errorf("decoding y: %w", err)
	}
	rec.Timestamp = time.Unix(0, ns)
	rec.Trace = tr
	return rec, nil
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		// mark the lazy open as done so later calls fail instead of reopening
		s.dbOnce.Do(func() { s.dbErr = errors.New("archive: closed") })
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
