package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

const (
	passagePrefix = "passage: "
	queryPrefix   = "query: "
	maxKeywords   = 5
)

// Embedder converts free text into a numeric vector representation.
// Dimension may report 0 until the first vector has been produced.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ResolveDimension returns the embedder's dimension, embedding a sample text
// when it is not known yet.
func ResolveDimension(ctx context.Context, e Embedder) (int, error) {
	if d := e.Dimension(); d > 0 {
		return d, nil
	}
	v, err := e.Embed(ctx, queryPrefix+"dimension check")
	if err != nil {
		return 0, fmt.Errorf("detect embedding dimension: %w", err)
	}
	if len(v) == 0 {
		return 0, errors.New("dimension check returned an empty vector")
	}
	return len(v), nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors are left untouched.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Valid reports whether v is non-empty, has no NaN or Inf entries and is not all zeros.
func Valid(v []float32) bool {
	nonZero := false
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if x != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// Dot returns the inner product of a and b over their common length.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	na, nb := math.Sqrt(Dot(a, a)), math.Sqrt(Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Fingerprint identifies an embedding configuration: the first 8 hex chars of
// md5("<model>_<dim>_normalize_True").
func Fingerprint(model string, dim int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_normalize_True", model, dim)))
	return hex.EncodeToString(sum[:])[:8]
}

// PassageText builds the text embedded for a stored document.
func PassageText(fileName string, keywords []string, summary string) string {
	stem, _, _ := strings.Cut(filepath.Base(fileName), ".")
	kws := make([]string, 0, maxKeywords)
	for _, k := range keywords {
		if len(kws) == maxKeywords {
			break
		}
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	return fmt.Sprintf("%s%s - %s - %s", passagePrefix, stem, strings.Join(kws, ", "), summary)
}

// QueryText builds the text embedded for a search query.
func QueryText(query string) string {
	return queryPrefix + strings.TrimSpace(query)
}

// StripPrefix removes the passage or query prefix from text.
func StripPrefix(text string) string {
	if s, ok := strings.CutPrefix(text, passagePrefix); ok {
		return s
	}
	return strings.TrimPrefix(text, queryPrefix)
}
