package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

type entry struct {
	doc    domain.RetrievedDocument
	vector []float32
}

// Index is an immutable in-memory snapshot; it is safe for concurrent queries.
type Index struct {
	entries   []entry
	dimension int
}

func (i *Index) Query(ctx context.Context, queryVector []float32, k int, scoreThreshold float64) ([]domain.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	if i.dimension > 0 && len(queryVector) != i.dimension {
		return nil, domain.WrapError(domain.ErrProvider, "query sqlite index",
			fmt.Errorf("query dimension %d, index dimension %d", len(queryVector), i.dimension))
	}

	candidates := make([]domain.RetrievedDocument, 0, k)
	for _, e := range i.entries {
		score := cosineSimilarity(queryVector, e.vector)
		if score < scoreThreshold {
			continue
		}
		doc := e.doc
		doc.Score = score
		candidates = append(candidates, doc)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (i *Index) Len() int {
	return len(i.entries)
}

// Close leaves the snapshot intact so queries already in flight finish
// against it; the memory is reclaimed once the last reader drops it.
func (i *Index) Close() error {
	return nil
}

func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
