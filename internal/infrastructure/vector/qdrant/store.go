package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

// Store publishes builds by moving an alias, so readers never see a
// half-filled collection.
type Store struct {
	client *Client
	alias  string
}

func NewStore(client *Client, alias string) *Store {
	if alias == "" {
		alias = "code_chunks"
	}
	return &Store{client: client, alias: alias}
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	target, err := s.client.aliasTarget(ctx, s.alias)
	if err != nil {
		return false, fmt.Errorf("check qdrant alias: %w", err)
	}
	return target != "", nil
}

func (s *Store) Open(ctx context.Context) (ports.VectorIndex, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrIndexNotFound, "open qdrant index", fmt.Errorf("alias %s", s.alias))
	}
	return &Index{client: s.client, collection: s.alias}, nil
}

func (s *Store) NewBuild(_ context.Context) (ports.IndexBuild, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return &Build{
		store:      s,
		collection: s.alias + "_" + suffix,
	}, nil
}

type Build struct {
	store      *Store
	collection string
	created    bool
	dimension  int
	count      int
}

func (b *Build) AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if !b.created {
		b.dimension = len(docs[0].Vector)
		if err := b.store.client.createCollection(ctx, b.collection, b.dimension); err != nil {
			return fmt.Errorf("create staging collection: %w", err)
		}
		b.created = true
	}

	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) != b.dimension {
			return domain.WrapError(domain.ErrProvider, "add documents",
				fmt.Errorf("vector dimension %d, index dimension %d", len(doc.Vector), b.dimension))
		}
		points = append(points, point{
			ID:     doc.ID,
			Vector: doc.Vector,
			Payload: map[string]any{
				"content":     doc.Chunk.Content,
				"source_path": doc.Chunk.SourcePath,
				"chunk_type":  string(doc.Chunk.Type),
				"ordinal":     b.count,
			},
		})
		b.count++
	}
	if err := b.store.client.upsert(ctx, b.collection, points); err != nil {
		return fmt.Errorf("upsert staging points: %w", err)
	}
	return nil
}

func (b *Build) Persist(ctx context.Context) (ports.VectorIndex, error) {
	if !b.created {
		return nil, domain.WrapError(domain.ErrNoChunks, "persist qdrant index", fmt.Errorf("collection %s is empty", b.collection))
	}
	previous, err := b.store.client.aliasTarget(ctx, b.store.alias)
	if err != nil {
		return nil, fmt.Errorf("resolve current alias: %w", err)
	}
	if err := b.store.client.switchAlias(ctx, b.store.alias, previous, b.collection); err != nil {
		return nil, fmt.Errorf("publish qdrant index: %w", err)
	}
	slog.Info("qdrant_alias_switched", "alias", b.store.alias, "collection", b.collection, "previous", previous, "points", b.count)

	if previous != "" && previous != b.collection {
		if err := b.store.client.deleteCollection(ctx, previous); err != nil {
			slog.Warn("qdrant_previous_collection_delete_failed", "collection", previous, "error", err)
		}
	}
	return &Index{client: b.store.client, collection: b.store.alias}, nil
}

func (b *Build) Discard(ctx context.Context) error {
	if !b.created {
		return nil
	}
	if err := b.store.client.deleteCollection(ctx, b.collection); err != nil {
		return fmt.Errorf("discard staging collection: %w", err)
	}
	return nil
}

type Index struct {
	client     *Client
	collection string
}

func (i *Index) Query(ctx context.Context, queryVector []float32, k int, scoreThreshold float64) ([]domain.RetrievedDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	hits, err := i.client.search(ctx, i.collection, queryVector, k, scoreThreshold)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < scoreThreshold {
			continue
		}
		out = append(out, domain.RetrievedDocument{
			ID:         fmt.Sprintf("%v", hit.ID),
			Content:    getStringPayload(hit.Payload, "content"),
			SourcePath: getStringPayload(hit.Payload, "source_path"),
			ChunkType:  domain.ChunkType(getStringPayload(hit.Payload, "chunk_type")),
			Score:      hit.Score,
		})
	}
	return out, nil
}

func (i *Index) Close() error {
	return nil
}
