package journal

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// defaultFlushEvery is the pending-batch size that triggers a flush.
const defaultFlushEvery = 32

// Source identifies where an entry originated.
type Source string

const (
	SourceScheduler Source = "scheduler"
	SourceSensor    Source = "sensor"
	SourceActuator  Source = "actuator"
)

// Entry is one immutable journal record.
type Entry struct {
	// Seq is the arrival-order sequence number, starting at 1.
	Seq int64
	// TimestampUS is microseconds on the session's monotonic clock.
	TimestampUS int64
	Source      Source
	Kind        string
	Payload     map[string]any
}

// NowFunc supplies monotonic microsecond timestamps.
// Injected rather than read from a global so tests and sim sessions
// control time.
type NowFunc func() int64

// SessionPath returns the journal file path for an experiment id.
func SessionPath(dir, experimentID string) string {
	return filepath.Join(dir, "SESSION_"+experimentID+".db")
}

// Writer is the single append-only sink for one session.
//
// Thread-safety: Append may be called from any goroutine - the
// scheduler and the sensor pollers share one Writer. Entries are
// stamped and sequenced under the lock, which is what makes the
// non-decreasing timestamp invariant hold across sources.
type Writer struct {
	db  *sql.DB
	now NowFunc

	mu         sync.Mutex
	pending    []Entry
	seq        int64
	flushEvery int
	closed     bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithFlushEvery overrides the pending-batch size.
// Use 1 to make every append durable immediately (slow, test-friendly).
func WithFlushEvery(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.flushEvery = n
		}
	}
}

// Open creates or opens the session journal at path.
// Applies WAL mode and the schema; idempotent.
func Open(path string, now NowFunc, opts ...Option) (*Writer, error) {
	if now == nil {
		return nil, fmt.Errorf("open journal: nil clock")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; keep a single connection so batched
	// transactions never contend with themselves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	w := &Writer{
		db:         db,
		now:        now,
		flushEvery: defaultFlushEvery,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Append records one entry. The timestamp and seq are assigned here,
// under the lock, in arrival order.
//
// An error means the entry (or a batch including it) could not be made
// durable. Appends never fail silently: callers must treat an error as
// fatal to the session after actuator-safe cleanup.
func (w *Writer) Append(source Source, kind string, payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("append %s: journal closed", kind)
	}

	w.seq++
	w.pending = append(w.pending, Entry{
		Seq:         w.seq,
		TimestampUS: w.now(),
		Source:      source,
		Kind:        kind,
		Payload:     payload,
	})

	if len(w.pending) >= w.flushEvery {
		return w.flushLocked()
	}
	return nil
}

// Flush commits all pending entries in one transaction.
// Called by the scheduler at trial boundaries and on shutdown.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// flushLocked writes the pending batch. Caller holds w.mu.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("flush journal: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.Prepare(`
		INSERT INTO entries (seq, ts_us, source, kind, payload)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("flush journal: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range w.pending {
		payload, err := marshalPayload(e.Payload)
		if err != nil {
			return fmt.Errorf("flush journal: entry %d: %w", e.Seq, err)
		}
		if _, err := stmt.Exec(e.Seq, e.TimestampUS, string(e.Source), e.Kind, payload); err != nil {
			return fmt.Errorf("flush journal: entry %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush journal: commit: %w", err)
	}
	w.pending = w.pending[:0]
	return nil
}

// SetMeta records a session metadata key.
func (w *Writer) SetMeta(key, value string) error {
	_, err := w.db.Exec(`
		INSERT INTO session_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// Close flushes pending entries and closes the database.
// Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.flushLocked()
	closeErr := w.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// marshalPayload serializes a payload map, tolerating nil.
func marshalPayload(p map[string]any) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}
