package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"mnemo/internal/atomicfile"
	"mnemo/internal/domain"
	"mnemo/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant implementing vectorstore.Index.
// Vectors live in the server; Save and Load only persist a local marker file
// that records which collection backs the database folder.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
	count     int
	ready     bool
}

var _ vectorstore.Index = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// ensureCollection creates the collection on first use with dot-product distance.
// An existing collection is only adopted when it is empty, since each database
// folder needs its own collection.
func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	if s.ready {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Dot",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		var se *statusError
		if !errors.As(err, &se) || se.code != http.StatusConflict {
			return err
		}
		if err := s.refreshCount(ctx); err != nil {
			return err
		}
		if s.count > 0 {
			return fmt.Errorf("qdrant collection %q already holds %d points from another database", s.collection, s.count)
		}
	}
	s.ready = true
	return nil
}

func (s *Storage) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckBatch(s.dimension, ids, vectors)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}
	s.dimension = dim

	var existing struct {
		Result []struct {
			ID int64 `json:"id"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points"), map[string]any{
		"ids": ids, "with_payload": false, "with_vector": false,
	}, &existing); err != nil {
		return err
	}
	if len(existing.Result) > 0 {
		return fmt.Errorf("id %d: %w", existing.Result[0].ID, domain.ErrAlreadyIndexed)
	}

	points := make([]map[string]any, len(ids))
	for i := range ids {
		points[i] = map[string]any{"id": ids[i], "vector": vectors[i]}
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return err
	}
	return s.refreshCount(ctx)
}

func (s *Storage) Search(ctx context.Context, query []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return []vectorstore.Hit{}, nil
	}
	if len(query) != s.dimension {
		return nil, &vectorstore.DimensionError{Expected: s.dimension, Got: len(query)}
	}
	if k <= 0 {
		k = 5
	}
	var resp struct {
		Result []struct {
			ID    int64   `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	req := map[string]any{"vector": query, "limit": k, "with_payload": false}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectorstore.Hit{ID: r.ID, Score: r.Score})
	}
	vectorstore.SortHits(hits)
	return hits, nil
}

func (s *Storage) Remove(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 || !s.ready {
		return nil
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"points": ids}, nil); err != nil {
		return err
	}
	return s.refreshCount(ctx)
}

func (s *Storage) refreshCount(ctx context.Context) error {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return err
	}
	s.count = resp.Result.Count
	return nil
}

type marker struct {
	URL        string `json:"url"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
}

// Save records the backing collection at path.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.MarshalIndent(marker{URL: s.url, Collection: s.collection, Dimension: s.dimension}, "", "    ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

// Load checks the marker at path against the configured collection and reads
// its dimension and point count from the server.
func (s *Storage) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open index marker: %w", err)
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode index marker: %w", err)
	}
	if m.Collection != s.collection {
		return fmt.Errorf("index marker names collection %q, configured %q", m.Collection, s.collection)
	}

	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = info.Result.Config.Params.Vectors.Size
	if s.dimension == 0 {
		s.dimension = m.Dimension
	}
	s.count = info.Result.PointsCount
	s.ready = true
	return nil
}

type statusError struct {
	method string
	url    string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed (status %d): %s", e.method, e.url, e.code, e.body)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{method: method, url: url, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
