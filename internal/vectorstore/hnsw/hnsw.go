package hnsw

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"mnemo/internal/atomicfile"
	"mnemo/internal/domain"
	"mnemo/internal/embedding"
	"mnemo/internal/vectorstore"
)

// Config holds the graph parameters.
type Config struct {
	M        int
	EfSearch int
}

// Storage is an approximate index backed by a coder/hnsw cosine graph.
// Removed ids are orphaned in the graph rather than deleted from it.
type Storage struct {
	mu     sync.Mutex
	graph  *hnsw.Graph[uint64]
	config Config

	dimension int
	idMap     map[int64]uint64
	keyMap    map[uint64]int64
	nextKey   uint64
	orphans   int
}

var _ vectorstore.Index = (*Storage)(nil)

type metadata struct {
	IDMap     map[int64]uint64
	NextKey   uint64
	Orphans   int
	Dimension int
	Config    Config
}

func NewStorage(cfg Config) *Storage {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	return &Storage{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[int64]uint64),
		keyMap: make(map[uint64]int64),
	}
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *Storage) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idMap)
}

// Add inserts vectors. Ids already present yield domain.ErrAlreadyIndexed and nothing is added.
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
		if _, exists := s.idMap[id]; exists || dup {
			return fmt.Errorf("id %d: %w", id, domain.ErrAlreadyIndexed)
		}
		seen[id] = struct{}{}
	}
	s.dimension = dim

	nodes := make([]hnsw.Node[uint64], len(ids))
	for i, id := range ids {
		key := s.nextKey
		s.nextKey++
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		embedding.Normalize(vec)
		nodes[i] = hnsw.MakeNode(key, vec)
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	s.graph.Add(nodes...)
	return nil
}

// Search returns up to k live hits scored by inner product.
func (s *Storage) Search(_ context.Context, query []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.idMap) == 0 || s.graph.Len() == 0 {
		return []vectorstore.Hit{}, nil
	}
	if len(query) != s.dimension {
		return nil, &vectorstore.DimensionError{Expected: s.dimension, Got: len(query)}
	}
	if k <= 0 {
		k = 5
	}
	q := make([]float32, len(query))
	copy(q, query)
	embedding.Normalize(q)

	want := min(k+s.orphans, s.graph.Len())
	s.graph.EfSearch = max(s.config.EfSearch, want)
	nodes := s.graph.Search(q, want)

	hits := make([]vectorstore.Hit, 0, len(nodes))
	for _, n := range nodes {
		id, ok := s.keyMap[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, vectorstore.Hit{ID: id, Score: embedding.Dot(q, n.Value)})
	}
	vectorstore.SortHits(hits)
	return hits[:min(k, len(hits))], nil
}

// Remove orphans the graph nodes of ids, ignoring unknown ones.
func (s *Storage) Remove(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			s.orphans++
		}
	}
	return nil
}

// Save exports the graph to path and the id mappings to path+".meta".
func (s *Storage) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomicfile.Write(path, 0o644, s.graph.Export); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	meta := metadata{
		IDMap:     s.idMap,
		NextKey:   s.nextKey,
		Orphans:   s.orphans,
		Dimension: s.dimension,
		Config:    s.config,
	}
	return atomicfile.Write(path+".meta", 0o644, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	})
}

// Load reads the id mappings first, then imports the graph.
func (s *Storage) Load(path string) error {
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open index metadata: %w", err)
	}
	defer mf.Close()
	var meta metadata
	if err := gob.NewDecoder(bufio.NewReader(mf)).Decode(&meta); err != nil {
		return fmt.Errorf("decode index metadata: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer f.Close()
	cfg := s.config
	if meta.Config.M > 0 {
		cfg = meta.Config
	}
	graph := newGraph(cfg)
	// Import needs an io.ByteReader
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	keyMap := make(map[uint64]int64, len(meta.IDMap))
	for id, key := range meta.IDMap {
		keyMap[key] = id
	}
	if meta.IDMap == nil {
		meta.IDMap = make(map[int64]uint64)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = graph
	s.config = cfg
	s.idMap = meta.IDMap
	s.keyMap = keyMap
	s.nextKey = meta.NextKey
	s.orphans = meta.Orphans
	s.dimension = meta.Dimension
	return nil
}
