package vectorstore

import (
	"context"
	"fmt"
	"sort"
)

// Hit is a stored id with its similarity to the query.
type Hit struct {
	ID    int64
	Score float64
}

// Index stores L2-normalized vectors under int64 ids and ranks them by inner product.
type Index interface {
	// Dimension is 0 until the first vectors are added or loaded.
	Dimension() int
	Len() int
	Add(ctx context.Context, ids []int64, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Remove(ctx context.Context, ids []int64) error
	Save(path string) error
	Load(path string) error
}

// DimensionError reports a vector whose length differs from the index dimension.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// CheckBatch validates ids and vectors against an index dimension, returning
// the dimension to use (dim, or the batch's when dim is 0).
func CheckBatch(dim int, ids []int64, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return dim, fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return dim, &DimensionError{Expected: dim, Got: len(v)}
		}
	}
	return dim, nil
}

// SortHits orders hits by descending score, breaking ties by ascending id.
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
