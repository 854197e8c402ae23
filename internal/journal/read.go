package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to a finished session journal.
type Reader struct {
	db *sql.DB
}

// OpenReader opens an existing journal file for analysis or replay.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open journal reader: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal reader: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Reader{db: db}, nil
}

// Close releases the underlying connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// All returns every entry in seq order.
func (r *Reader) All() ([]Entry, error) {
	return r.query(`
		SELECT seq, ts_us, source, kind, payload
		FROM entries ORDER BY seq
	`)
}

// ByKind returns entries of one kind in seq order.
func (r *Reader) ByKind(kind string) ([]Entry, error) {
	return r.query(`
		SELECT seq, ts_us, source, kind, payload
		FROM entries WHERE kind = ? ORDER BY seq
	`, kind)
}

// Meta returns a session metadata value. Missing keys are an error so
// replay cannot proceed with a partial record.
func (r *Reader) Meta(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM session_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("session meta %q: not recorded", key)
	}
	if err != nil {
		return "", fmt.Errorf("session meta %q: %w", key, err)
	}
	return value, nil
}

func (r *Reader) query(q string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			source  string
			payload string
		)
		if err := rows.Scan(&e.Seq, &e.TimestampUS, &source, &e.Kind, &payload); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Source = Source(source)
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode payload for seq %d: %w", e.Seq, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}
