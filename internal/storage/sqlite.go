package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultBatchSize is the number of median rows committed per transaction
const DefaultBatchSize = 500

// Storage persists the medians reported by each run.
// Rows are buffered in a transaction and committed every batchSize rows.
type Storage struct {
	db        *sql.DB
	batchSize int

	mu      sync.Mutex
	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string, batchSize int) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps the open batch transaction and plain queries ordered
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	storage := &Storage{db: db, batchSize: batchSize}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		events INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS medians (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_time TIMESTAMP NOT NULL,
		actor TEXT NOT NULL,
		target TEXT NOT NULL,
		outcome TEXT NOT NULL,
		median REAL NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_medians_event_time ON medians(run_id, event_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// BeginRun registers a new run and returns its ID
func (s *Storage) BeginRun(source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, source, started_at, events)
		VALUES (?, ?, ?, 0)
	`, runID, source, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	return runID, nil
}

// RecordMedian buffers a median row, committing once the batch is full
func (s *Storage) RecordMedian(row MedianRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin batch: %w", err)
		}
		stmt, err := tx.Prepare(`
			INSERT INTO medians (run_id, seq, event_time, actor, target, outcome, median)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare median insert: %w", err)
		}
		s.tx, s.stmt = tx, stmt
	}

	_, err := s.stmt.Exec(row.RunID, row.Seq, row.EventTime.UTC(), row.Actor, row.Target, row.Outcome, row.Median)
	if err != nil {
		return fmt.Errorf("failed to insert median: %w", err)
	}

	s.pending++
	if s.pending >= s.batchSize {
		return s.commitLocked()
	}
	return nil
}

// Flush commits any buffered rows
func (s *Storage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

// FinishRun commits buffered rows and stamps the run as finished
func (s *Storage) FinishRun(runID string, events int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(); err != nil {
		return err
	}

	_, err := s.db.Exec("UPDATE runs SET finished_at = ?, events = ? WHERE run_id = ?",
		time.Now().UTC(), events, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, returns nil if not found
func (s *Storage) GetRun(runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(); err != nil {
		return nil, err
	}

	var run Run
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT run_id, source, started_at, finished_at, events
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.Source, &run.StartedAt, &finished, &run.Events)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// LoadMedians returns every median recorded for a run, in submission order
func (s *Storage) LoadMedians(runID string) ([]MedianRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT run_id, seq, event_time, actor, target, outcome, median
		FROM medians
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load medians: %w", err)
	}
	defer rows.Close()

	var medians []MedianRow
	for rows.Next() {
		var row MedianRow
		if err := rows.Scan(&row.RunID, &row.Seq, &row.EventTime, &row.Actor, &row.Target, &row.Outcome, &row.Median); err != nil {
			return nil, fmt.Errorf("failed to scan median: %w", err)
		}
		medians = append(medians, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating medians: %w", err)
	}

	return medians, nil
}

// Close commits buffered rows and closes the database connection
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	commitErr := s.commitLocked()
	if err := s.db.Close(); err != nil {
		return err
	}
	return commitErr
}

func (s *Storage) commitLocked() error {
	if s.tx == nil {
		return nil
	}

	s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt, s.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
