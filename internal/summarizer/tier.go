package summarizer

import (
	"mnemo/internal/config"
	"mnemo/internal/domain"
)

// Factory returns the summarizer for a tier ("quality" or "speed").
type Factory func(tier string) domain.Summarizer

// NewFactory maps tiers to LLM summarizers using the configured models. With
// offline set every tier uses the frequency summarizer.
func NewFactory(cfg *config.AppConfig, gen Generator, offline bool) Factory {
	if offline || gen == nil {
		freq := NewFrequencySummarizer(defaultMaxSentences)
		return func(string) domain.Summarizer { return freq }
	}
	return func(tier string) domain.Summarizer {
		return NewLLMSummarizer(gen, LLMConfig{
			Model:           cfg.ModelForTier(tier),
			MaxRetries:      cfg.Organize.MaxRetries,
			MinOutputChars:  cfg.Organize.MinOutputChars,
			MinSummaryChars: cfg.Organize.MinSummaryChars,
		})
	}
}
