// Package valkey implements db.Store for valkey-search. It reuses the Redis
// store and replaces the commands valkey-search does not accept: bare
// FT.SEARCH without KNN, SORTBY on KNN queries and FT.DROPINDEX DD.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/rulebook/internal/db"
	dbRedis "github.com/kailas-cloud/rulebook/internal/db/redis"
)

var _ db.Store = (*Store)(nil)

// Store is the Redis store with valkey-search specific overrides.
type Store struct {
	*dbRedis.Store
	client rueidis.Client
}

// NewStore dials cfg. Like the Redis store, an unreachable server fails here.
func NewStore(cfg dbRedis.Config) (*Store, error) {
	client, err := dbRedis.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return FromClient(client), nil
}

// FromClient wraps an existing rueidis client.
func FromClient(c rueidis.Client) *Store {
	return &Store{Store: dbRedis.FromClient(c), client: c}
}

// SearchKNN runs FT.SEARCH KNN without SORTBY and orders hits client-side,
// most similar first.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	field := q.Field
	if field == "" {
		field = "vector"
	}

	args := []string{q.IndexName, fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, field)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, dbRedis.ScoreField)
	}
	args = append(args, "PARAMS", "2", "BLOB", dbRedis.EncodeVector(q.Vector), "DIALECT", "2")

	raw, err := s.client.Do(ctx, s.client.B().Arbitrary(db.OpSearch).Args(args...).Build()).ToArray()
	if err != nil {
		if dbRedis.IsUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := dbRedis.ParseKNNReply(raw)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res.Entries, func(i, j int) bool { return res.Entries[i].Score > res.Entries[j].Score })
	return res, nil
}

// SearchCount counts the index's documents. For "*" it scans the key prefix,
// since valkey-search rejects FT.SEARCH without a KNN clause.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	if query != "*" {
		return s.Store.SearchCount(ctx, index, query)
	}
	keys, err := s.Scan(ctx, indexToKeyPrefix(index)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan for count: %w", err)
	}
	return len(keys), nil
}

// DropIndex drops the index, then deletes its documents by key prefix when
// deleteDocs is set. Documents are removed even when the index is already gone.
func (s *Store) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	dropErr := s.Store.DropIndex(ctx, name, false)
	if dropErr != nil && !errors.Is(dropErr, db.ErrIndexNotFound) {
		return dropErr
	}
	if !deleteDocs {
		return dropErr
	}

	keys, err := s.Scan(ctx, indexToKeyPrefix(name)+"*")
	if err != nil {
		return fmt.Errorf("scan documents of %s: %w", name, err)
	}
	if err := s.DelKeys(ctx, keys); err != nil {
		return fmt.Errorf("delete documents of %s: %w", name, err)
	}
	return dropErr
}

// indexToKeyPrefix maps an index name to its document key prefix.
// "rulebook:rules:idx" -> "rulebook:rules:"
func indexToKeyPrefix(index string) string {
	if strings.HasSuffix(index, ":idx") {
		return strings.TrimSuffix(index, "idx")
	}
	return index + ":"
}
