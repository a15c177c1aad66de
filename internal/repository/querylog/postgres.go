package querylog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS query_history (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	query TEXT NOT NULL,
	final_answer TEXT,
	context_chunks TEXT
)`

// Postgres stores the log in a shared PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
	host string
}

// OpenPostgres creates a pool and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	cfg := pool.Config().ConnConfig
	return &Postgres{pool: pool, host: cfg.Host + "/" + cfg.Database}, nil
}

// Init creates the query_history table if it does not exist.
func (p *Postgres) Init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return storageErr("create schema", err)
	}
	return nil
}

// Append inserts e and returns its id.
func (p *Postgres) Append(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO query_history (user_id, timestamp, query, final_answer, context_chunks)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.UserID, e.Timestamp.UTC(), e.Query, e.FinalAnswer, e.ContextChunks,
	).Scan(&id)
	if err != nil {
		return 0, storageErr("append", err)
	}
	return id, nil
}

// List returns entries in insertion order.
func (p *Postgres) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	q, args := listQuery(userID, limit, pgPlaceholder)
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e                     Entry
			answer, contextChunks *string
		)
		if err := row.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.Query, &answer, &contextChunks); err != nil {
			return Entry{}, err
		}
		if answer != nil {
			e.FinalAnswer = *answer
		}
		if contextChunks != nil {
			e.ContextChunks = *contextChunks
		}
		return e, nil
	})
	if err != nil {
		return nil, storageErr("list", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Describe names the database without credentials.
func (p *Postgres) Describe() string { return "postgres://" + p.host }

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }
