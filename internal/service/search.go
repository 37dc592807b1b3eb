package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mnemo/internal/domain"
	"mnemo/internal/embedding"
)

const (
	DefaultTopK = 10
	MaxTopK     = 100
)

// ClampTopK bounds k to [1, MaxTopK].
func ClampTopK(k int) int {
	return min(max(k, 1), MaxTopK)
}

// Search ranks stored documents against query by cosine similarity.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	topK = ClampTopK(topK)

	p, err := s.paths()
	if err != nil {
		return nil, err
	}
	if !p.hasDatabase() {
		return nil, domain.ErrNoDatabase
	}
	snap, err := s.load(p)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, embedding.QueryText(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	embedding.Normalize(vec)
	if dim := snap.index.Dimension(); dim != 0 && dim != len(vec) {
		return nil, fmt.Errorf("query dimension %d, index dimension %d: %w", len(vec), dim, domain.ErrModelChanged)
	}

	hits, err := snap.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		doc, ok := snap.docs[h.ID]
		if !ok {
			continue
		}
		results = append(results, domain.SearchResult{ID: h.ID, Document: doc, Score: h.Score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}
