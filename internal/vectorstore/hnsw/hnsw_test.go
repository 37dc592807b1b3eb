package hnsw

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/domain"
	"mnemo/internal/embedding"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = embedding.Normalize(v)
	}
	return out
}

func TestAddAndSearchFindsExactMatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(Config{})
	vecs := randomVectors(50, 16, 1)
	ids := make([]int64, len(vecs))
	for i := range ids {
		ids[i] = int64(1000 + i)
	}
	require.NoError(t, s.Add(ctx, ids, vecs))
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 16, s.Dimension())

	hits, err := s.Search(ctx, vecs[7], 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(1007), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRemoveHidesIDs(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(Config{M: 8, EfSearch: 16})
	vecs := randomVectors(10, 8, 2)
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, s.Add(ctx, ids, vecs))

	require.NoError(t, s.Remove(ctx, []int64{3, 42}))
	assert.Equal(t, 9, s.Len())

	hits, err := s.Search(ctx, vecs[2], 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, int64(3), h.ID)
	}

	// a removed id can be added again
	require.NoError(t, s.Add(ctx, []int64{3}, [][]float32{vecs[2]}))
	hits, err = s.Search(ctx, vecs[2], 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), hits[0].ID)
}

func TestDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(Config{})
	require.NoError(t, s.Add(ctx, []int64{1}, [][]float32{{1, 0}}))
	err := s.Add(ctx, []int64{1}, [][]float32{{0, 1}})
	assert.True(t, errors.Is(err, domain.ErrAlreadyIndexed))
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vector_index.bin")
	s := NewStorage(Config{})
	vecs := randomVectors(20, 8, 3)
	ids := make([]int64, len(vecs))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, s.Add(ctx, ids, vecs))
	require.NoError(t, s.Remove(ctx, []int64{20}))
	require.NoError(t, s.Save(path))
	assert.FileExists(t, path+".meta")

	loaded := NewStorage(Config{})
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 19, loaded.Len())
	assert.Equal(t, 8, loaded.Dimension())

	hits, err := loaded.Search(ctx, vecs[4], 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, int64(5), hits[0].ID, fmt.Sprintf("hits: %+v", hits))
}

func TestSearchEmpty(t *testing.T) {
	hits, err := NewStorage(Config{}).Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
