// Package querylog is the append-only audit trail of served queries.
package querylog

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

// Entry is one served query. ID is assigned by the store on Append.
type Entry struct {
	ID            int64
	UserID        string
	Timestamp     time.Time
	Query         string
	FinalAnswer   string
	ContextChunks string
}

// Store is implemented by every driver.
type Store interface {
	// Init creates the schema; safe to call on every start.
	Init(ctx context.Context) error
	Append(ctx context.Context, e Entry) (int64, error)
	// List returns up to limit of the most recent entries, oldest first.
	// An empty userID lists every user; limit <= 0 lists everything.
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
	Describe() string
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver string // sqlite | postgres
	Path   string // sqlite file
	DSN    string // postgres connection string
}

// Open creates the configured store and runs Init.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = OpenSQLite(cfg.Path)
	case "postgres":
		s, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown query log driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

// listQuery builds the history query. Both drivers accept the same SQL
// apart from placeholder syntax, which placeholder renders.
func listQuery(userID string, limit int, placeholder func(n int) string) (string, []any) {
	inner := "SELECT id, user_id, timestamp, query, final_answer, context_chunks FROM query_history"
	var args []any
	if userID != "" {
		args = append(args, userID)
		inner += " WHERE user_id = " + placeholder(len(args))
	}
	if limit <= 0 {
		return inner + " ORDER BY id", args
	}
	args = append(args, limit)
	inner += " ORDER BY id DESC LIMIT " + placeholder(len(args))
	return "SELECT * FROM (" + inner + ") AS recent ORDER BY id", args
}
