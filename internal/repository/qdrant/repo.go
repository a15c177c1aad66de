// Package qdrant is the vector engine backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

const upsertBatchSize = 256

// client is the subset of *qdrant.Client the engine uses.
type client interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Config holds connection parameters.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Repo implements the index engine over Qdrant.
type Repo struct {
	client    client
	vectorDim int
	retry     func() backoff.BackOff
}

// New dials Qdrant. The gRPC connection is lazy; use WaitForReady before first use.
func New(cfg Config, vectorDim int) (*Repo, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return newRepo(c, vectorDim), nil
}

func newRepo(c client, vectorDim int) *Repo {
	return &Repo{client: c, vectorDim: vectorDim, retry: defaultBackOff}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Ping performs a single health check.
func (r *Repo) Ping(ctx context.Context) error {
	reply, err := r.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	if reply == nil || reply.GetTitle() == "" {
		return errors.New("qdrant health check returned an empty reply")
	}
	return nil
}

// WaitForReady retries Ping with exponential backoff, bounded by timeout.
func (r *Repo) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	op := func() error { return r.Ping(ctx) }
	if err := backoff.Retry(op, backoff.WithContext(r.retry(), ctx)); err != nil {
		return fmt.Errorf("timeout waiting for qdrant: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (r *Repo) Close() {
	_ = r.client.Close()
}

// EnsureCollection creates the collection unless it already exists.
func (r *Repo) EnsureCollection(ctx context.Context, name string) error {
	ok, err := r.Exists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.create(ctx, name)
}

// Recreate deletes the collection with its points, then creates it empty.
func (r *Repo) Recreate(ctx context.Context, name string) error {
	if err := r.client.DeleteCollection(ctx, name); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return r.create(ctx, name)
}

func (r *Repo) create(ctx context.Context, name string) error {
	err := r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(r.vectorDim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// AddBulk upserts records in batches, waiting for each batch to be applied.
func (r *Repo) AddBulk(ctx context.Context, name string, records []domain.ChunkRecord) error {
	for i := range records {
		if len(records[i].Vector) != r.vectorDim {
			return fmt.Errorf("record %s: vector has %d dimensions, collection expects %d",
				records[i].ID, len(records[i].Vector), r.vectorDim)
		}
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, toPoint(name, &records[i]))
		}

		op := func() error {
			_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: name,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			if isNotFound(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(r.retry(), ctx)); err != nil {
			return fmt.Errorf("upsert %s batch %d-%d: %w", name, start, end, err)
		}
	}
	return nil
}

// Search returns up to k chunks ranked most similar first. A missing
// collection yields no hits.
func (r *Repo) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.ChunkHit, error) {
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isNotFound(err) {
			return []domain.ChunkHit{}, nil
		}
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	hits := make([]domain.ChunkHit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, domain.ChunkHit{
			ID:    payload[docIDKey].GetStringValue(),
			Text:  payload[textKey].GetStringValue(),
			Score: min(1, max(0, float64(p.GetScore()))),
		})
	}
	return hits, nil
}

// Exists reports whether the collection is present.
func (r *Repo) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", name, err)
	}
	return ok, nil
}

// Count returns the exact number of points, 0 when the collection is absent.
func (r *Repo) Count(ctx context.Context, name string) (int, error) {
	n, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return int(n), nil
}

// Describe names the backend for status messages.
func (r *Repo) Describe() string { return "qdrant" }

const (
	docIDKey   = "doc_id"
	ordinalKey = "ordinal"
	textKey    = "text"
)

// toPoint derives a stable UUID from collection and chunk id, since Qdrant
// only accepts integers and UUIDs as point ids.
func toPoint(collection string, rec *domain.ChunkRecord) *qdrant.PointStruct {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"/"+rec.ID))
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id.String()),
		Vectors: qdrant.NewVectors(rec.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			docIDKey:   rec.ID,
			ordinalKey: rec.Ordinal,
			textKey:    rec.Text,
		}),
	}
}

func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}
