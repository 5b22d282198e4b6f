// Package memory implements the optional procedural-memory hook spec.md §1
// and §9 describe as an "opaque string-producing hook": a collaborator the
// engine may call to fetch extra context (prior trajectories, curriculum
// exemplars) with no contract beyond "returns a string". This is a
// deliberately small adaptation of the teacher's Qdrant vector-store client
// (internal/persistence/databases/qdrant_vector.go) — the upsert/search
// shape is kept, but generalized from generic vector storage to a single
// Synthesize(ctx, query) string entry point matching rlm.ExternalContextFunc.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Embedder turns text into a vector for similarity search; the RLM runtime
// does not prescribe an embedding model, so this is left pluggable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Exemplar is one stored procedural-memory record: a past query paired
// with the SPARQL/answer it converged on, used as a few-shot hint.
type Exemplar struct {
	Query  string
	Answer string
	Sparql string
}

// Store is a thin Qdrant-backed procedural-memory hook.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	embedder   Embedder
}

// NewStore connects to dsn (a qdrant:// or http(s):// URL, optionally
// carrying an api_key query parameter) and ensures collection exists with
// the given vector dimension and distance metric ("cosine" by default).
func NewStore(dsn, collection string, dimensions int, metric string, embedder Embedder) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("memory: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("memory: invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("memory: create qdrant client: %w", err)
	}

	s := &Store{client: client, collection: collection, dimension: dimensions, embedder: embedder}
	if err := s.ensureCollection(context.Background(), metric); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, metric string) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("memory: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("memory: qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

// Remember upserts a converged run's query/answer/sparql as a future
// exemplar, keyed by a deterministic UUID derived from the query text so
// re-recording the same query overwrites rather than duplicates.
func (s *Store) Remember(ctx context.Context, ex Exemplar) error {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, ex.Query)
	if err != nil {
		return fmt.Errorf("memory: embed exemplar: %w", err)
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(ex.Query)).String()
	payload := qdrant.NewValueMap(map[string]any{
		"query":  ex.Query,
		"answer": ex.Answer,
		"sparql": ex.Sparql,
	})
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	return err
}

// Synthesize fetches the k nearest
// exemplars to query and renders them as a short few-shot block, or ""
// on any failure — procedural memory is advisory, never load-bearing, so
// errors are swallowed rather than propagated into the run.
func (s *Store) Synthesize(ctx context.Context, query string, k int) string {
	if s.embedder == nil {
		return ""
	}
	if k <= 0 {
		k = 3
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return ""
	}
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil || len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Similar prior queries this agent has solved:\n\n")
	for _, hit := range hits {
		if hit.Payload == nil {
			continue
		}
		q := hit.Payload["query"].GetStringValue()
		a := hit.Payload["answer"].GetStringValue()
		sp := hit.Payload["sparql"].GetStringValue()
		fmt.Fprintf(&b, "- query: %s\n  answer: %s\n  sparql: %s\n", q, a, sp)
	}
	return b.String()
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error { return s.client.Close() }
