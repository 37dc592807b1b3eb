package summarizer

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"mnemo/internal/chunker"
	"mnemo/internal/domain"
	"mnemo/internal/embedding/hashed"
)

const (
	defaultMaxSentences = 3
	frequencyKeywords   = 5
)

// FrequencySummarizer ranks sentences by term frequency and uses the most
// frequent terms as keywords. It needs no model and is used for offline runs.
type FrequencySummarizer struct {
	maxSentences int
	tokenizer    *hashed.Embedder
	sentences    *chunker.SentenceChunker
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	return &FrequencySummarizer{
		maxSentences: maxSentences,
		tokenizer:    hashed.NewEmbedder(1),
		sentences:    chunker.NewSentenceChunker(1, 0, 0),
	}
}

// Summarize returns the top-ranked sentences in original order and the most frequent terms.
func (s *FrequencySummarizer) Summarize(ctx context.Context, fileName string, blocks []string) (domain.Summary, error) {
	if err := ctx.Err(); err != nil {
		return domain.Summary{}, err
	}
	var sentences []string
	for _, b := range blocks {
		sentences = append(sentences, s.sentences.Sentences(b)...)
	}
	if len(sentences) == 0 {
		return domain.Summary{}, domain.Skip(domain.ReasonInvalidOutput, domain.ErrInvalidOutput)
	}

	// Compute word frequencies
	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = s.tokenizer.Tokenize(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	keywords := topTerms(freq, frequencyKeywords)

	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	// Score sentences
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i := range sentences {
		sscore := 0.0
		for _, tok := range tokens[i] {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(tokens[i])); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(s.maxSentences, len(scores))
	// Keep original order among selected
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	summary := strings.TrimSpace(strings.ReplaceAll(strings.Join(out, " "), fileName, ""))
	if summary == "" || len(keywords) == 0 {
		return domain.Summary{}, domain.Skip(domain.ReasonInvalidOutput, domain.ErrInvalidOutput)
	}
	return domain.Summary{Keywords: keywords, Summary: summary}, nil
}

// topTerms returns the n most frequent terms of at least two characters,
// breaking ties alphabetically.
func topTerms(freq map[string]float64, n int) []string {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		if utf8.RuneCountInString(t) >= 2 {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
