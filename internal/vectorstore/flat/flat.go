package flat

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"mnemo/internal/atomicfile"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/vectorstore"
)

// Storage is an exact inner-product index: every search scores every stored vector.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	ids       []int64
	vectors   [][]float32
	pos       map[int64]int
}

var _ vectorstore.Index = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{pos: make(map[int64]int)} }

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Add appends vectors. Ids already present yield domain.ErrAlreadyIndexed and nothing is added.
func (s *Storage) Add(_ context.Context, ids []int64, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckBatch(s.dimension, ids, vectors)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		if _, exists := s.pos[id]; exists || dup {
			return fmt.Errorf("id %d: %w", id, domain.ErrAlreadyIndexed)
		}
		seen[id] = struct{}{}
	}
	s.dimension = dim
	for i, id := range ids {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		s.pos[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, v)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, query []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) == 0 {
		return []vectorstore.Hit{}, nil
	}
	if len(query) != s.dimension {
		return nil, &vectorstore.DimensionError{Expected: s.dimension, Got: len(query)}
	}
	if k <= 0 {
		k = 5
	}
	// vectors are assumed L2-normalized, so the inner product is the cosine similarity
	hits := make([]vectorstore.Hit, len(s.ids))
	for i := range s.vectors {
		hits[i] = vectorstore.Hit{ID: s.ids[i], Score: embedding.Dot(s.vectors[i], query)}
	}
	vectorstore.SortHits(hits)
	return hits[:min(k, len(hits))], nil
}

// Remove deletes ids, ignoring unknown ones.
func (s *Storage) Remove(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		i, ok := s.pos[id]
		if !ok {
			continue
		}
		last := len(s.ids) - 1
		s.ids[i], s.vectors[i] = s.ids[last], s.vectors[last]
		s.pos[s.ids[i]] = i
		s.ids, s.vectors = s.ids[:last], s.vectors[:last]
		delete(s.pos, id)
	}
	return nil
}

type snapshot struct {
	Dimension int
	IDs       []int64
	Vectors   [][]float32
}

// Save writes the index as gob through an atomic rename.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return atomicfile.Write(path, 0o644, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(snapshot{Dimension: s.dimension, IDs: s.ids, Vectors: s.vectors})
	})
}

// Load replaces the contents with the index stored at path.
func (s *Storage) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return fmt.Errorf("decode index %s: %w", path, err)
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return fmt.Errorf("corrupt index %s: %d ids for %d vectors", path, len(snap.IDs), len(snap.Vectors))
	}
	pos := make(map[int64]int, len(snap.IDs))
	for i, id := range snap.IDs {
		pos[id] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = snap.Dimension
	s.ids = snap.IDs
	s.vectors = snap.Vectors
	s.pos = pos
	return nil
}
