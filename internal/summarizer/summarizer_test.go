package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/config"
	"mnemo/internal/domain"
	"mnemo/internal/embedding/hashed"
	"mnemo/internal/llm"
)

type scriptedGenerator struct {
	outputs []string
	errs    []error
	calls   int
	models  []string
}

func (g *scriptedGenerator) Generate(_ context.Context, model, _ string, opts llm.Options) (string, error) {
	i := min(g.calls, len(g.outputs)-1)
	g.calls++
	g.models = append(g.models, model)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	return g.outputs[i], err
}

var longSummary = strings.Repeat("这份报告分析了新能源市场的增长趋势与主要驱动因素。", 3)

func validOutput(summary string) string {
	return fmt.Sprintf(`Here you go: {"keywords": ["新能源", "市场"], "summary": %q} thanks`, summary)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("report.pdf", []string{"first block", "second block"})
	assert.Contains(t, p, "文件名：report.pdf")
	assert.Contains(t, p, "- first block\n- second block")
	assert.Contains(t, p, `"keywords": ["", "", ""]`)
}

func TestLLMSummarizerSuccess(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{validOutput("report.pdf " + longSummary)}}
	s := NewLLMSummarizer(gen, LLMConfig{Model: "m", MinOutputChars: 100, MinSummaryChars: 50})

	got, err := s.Summarize(context.Background(), "report.pdf", []string{"block"})
	require.NoError(t, err)
	assert.Equal(t, []string{"新能源", "市场"}, got.Keywords)
	assert.Equal(t, longSummary, got.Summary)
	assert.Equal(t, 1, gen.calls)
}

func TestLLMSummarizerRetriesShortOutput(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"{}", "", validOutput(longSummary)}}
	s := NewLLMSummarizer(gen, LLMConfig{Model: "m", MaxRetries: 3, MinOutputChars: 100, MinSummaryChars: 50})

	got, err := s.Summarize(context.Background(), "a.pptx", nil)
	require.NoError(t, err)
	assert.Equal(t, longSummary, got.Summary)
	assert.Equal(t, 3, gen.calls)
}

func TestLLMSummarizerSkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   domain.SkipReason
	}{
		{"transport", "", fmt.Errorf("%w: refused", domain.ErrLLMUnavailable), domain.ReasonHTTPRequest},
		{"status", "", &llm.StatusError{Code: 500, Body: "boom"}, domain.ReasonHTTPRequest},
		{"unknown", "", errors.New("decode response"), domain.ReasonUnknownOllama},
		{"no object", "no json here", nil, domain.ReasonJSONParse},
		{"broken json", "{not json}", nil, domain.ReasonJSONParse},
		{"missing summary", `{"keywords": ["a"]}`, nil, domain.ReasonJSONParse},
		{"keywords wrong type", `{"keywords": "a, b", "summary": "x"}`, nil, domain.ReasonJSONParse},
		{"short summary", `{"keywords": ["a"], "summary": "too short"}`, nil, domain.ReasonInvalidOutput},
		{"no keywords", `{"keywords": [], "summary": "` + longSummary + `"}`, nil, domain.ReasonInvalidOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{outputs: []string{tt.output}, errs: []error{tt.err}}
			s := NewLLMSummarizer(gen, LLMConfig{Model: "m", MaxRetries: 2, MinOutputChars: 100, MinSummaryChars: 50})
			_, err := s.Summarize(context.Background(), "f.pdf", []string{"b"})
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.ReasonOf(err))
		})
	}
}

func TestLLMSummarizerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{outputs: []string{""}}
	_, err := NewLLMSummarizer(gen, LLMConfig{Model: "m", MinOutputChars: 100}).Summarize(ctx, "f.pdf", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.calls)
}

func TestSelectTopBlocks(t *testing.T) {
	e := hashed.NewEmbedder(256)
	blocks := []string{
		"solar energy market growth",
		"solar energy panels market",
		"office cafeteria lunch menu",
		"solar market energy outlook",
	}
	got, err := SelectTopBlocks(context.Background(), e, blocks, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.NotContains(t, got, "office cafeteria lunch menu")

	all, err := SelectTopBlocks(context.Background(), e, blocks[:2], 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = SelectTopBlocks(context.Background(), e, nil, 3)
	assert.Equal(t, domain.ReasonTopTextBlocks, domain.ReasonOf(err))
}

func TestFrequencySummarizer(t *testing.T) {
	s := NewFrequencySummarizer(2)
	blocks := []string{
		"Solar energy adoption is rising. Solar panels are cheaper than before.",
		"The cafeteria opens at noon. Solar energy storage remains expensive.",
	}
	got, err := s.Summarize(context.Background(), "deck.pptx", blocks)
	require.NoError(t, err)
	assert.Contains(t, got.Keywords, "solar")
	assert.LessOrEqual(t, len(got.Keywords), 5)
	assert.NotContains(t, got.Summary, "cafeteria")

	_, err = s.Summarize(context.Background(), "deck.pptx", nil)
	assert.Equal(t, domain.ReasonInvalidOutput, domain.ReasonOf(err))
}

func TestFactory(t *testing.T) {
	cfg, err := config.Load(t.TempDir() + "/none.json")
	require.NoError(t, err)
	gen := &scriptedGenerator{outputs: []string{validOutput(longSummary)}}

	f := NewFactory(cfg, gen, false)
	speed, ok := f("speed").(*LLMSummarizer)
	require.True(t, ok)
	assert.Equal(t, cfg.Ollama.SpeedModel, speed.Model())
	quality := f("quality").(*LLMSummarizer)
	assert.Equal(t, cfg.Ollama.QualityModel, quality.Model())

	_, isFreq := NewFactory(cfg, gen, true)("quality").(*FrequencySummarizer)
	assert.True(t, isFreq)
}
