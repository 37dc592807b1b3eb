package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mnemo/internal/domain"
	"mnemo/internal/embedding"
)

// SelectTopBlocks keeps the k blocks closest to the centroid of all block
// embeddings, ordered by descending cosine similarity.
func SelectTopBlocks(ctx context.Context, e embedding.Embedder, blocks []string, k int) ([]string, error) {
	if len(blocks) == 0 {
		return nil, domain.Skip(domain.ReasonTopTextBlocks, errors.New("no text blocks"))
	}
	if k <= 0 {
		return nil, domain.Skip(domain.ReasonTopTextBlocks, fmt.Errorf("invalid block count %d", k))
	}
	vecs, err := e.EmbedBatch(ctx, blocks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Skip(domain.ReasonTopTextBlocks, fmt.Errorf("embed blocks: %w", err))
	}
	if len(vecs) != len(blocks) || len(vecs[0]) == 0 {
		return nil, domain.Skip(domain.ReasonTopTextBlocks, errors.New("embedder returned mismatched vectors"))
	}

	dim := len(vecs[0])
	mean := make([]float32, dim)
	for _, v := range vecs {
		for i := 0; i < dim && i < len(v); i++ {
			mean[i] += v[i]
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vecs))
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(vecs))
	for i, v := range vecs {
		scores[i] = scored{i, embedding.Cosine(v, mean)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(k, len(blocks))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = blocks[scores[i].idx]
	}
	return out, nil
}
