package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS query_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	query TEXT NOT NULL,
	final_answer TEXT,
	context_chunks TEXT
)`

// SQLite stores the log in a single database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "query_log.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating query log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening query log: %w", err)
	}
	// one writer at a time; appends queue on the pool
	db.SetMaxOpenConns(1)

	return &SQLite{db: db, path: path}, nil
}

// Init creates the query_history table if it does not exist.
func (s *SQLite) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return storageErr("create schema", err)
	}
	return nil
}

// Append inserts e and returns its id.
func (s *SQLite) Append(ctx context.Context, e Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO query_history (user_id, timestamp, query, final_answer, context_chunks) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Query, e.FinalAnswer, e.ContextChunks,
	)
	if err != nil {
		return 0, storageErr("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append", err)
	}
	return id, nil
}

// List returns entries in insertion order.
func (s *SQLite) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	q, args := listQuery(userID, limit, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                    Entry
			ts                   string
			answer, contextChunk sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &ts, &e.Query, &answer, &contextChunk); err != nil {
			return nil, storageErr("scan", err)
		}
		e.FinalAnswer = answer.String
		e.ContextChunks = contextChunk.String
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, storageErr("parse timestamp", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return entries, nil
}

// Ping checks that the database file is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Describe names the backing file.
func (s *SQLite) Describe() string { return s.path }

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
