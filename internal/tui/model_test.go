package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/domain"
)

type fakeSearcher struct {
	results []domain.SearchResult
	err     error
	query   string
	topK    int
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	f.query, f.topK = query, topK
	return f.results, f.err
}

type fakeOpener struct {
	opened []string
	err    error
}

func (f *fakeOpener) OpenFile(path string) error {
	f.opened = append(f.opened, path)
	return f.err
}

func sampleResults() []domain.SearchResult {
	return []domain.SearchResult{
		{ID: 1, Score: 0.91, Document: domain.Document{
			FileName: "quantum.pdf", FilePath: "/docs/quantum.pdf",
			Keywords: []string{"qubits", "gates"},
			Summary:  "Introduces quantum hardware. Qubits hold superpositions. Gates act on them.",
		}},
		{ID: 2, Score: 0.42, Document: domain.Document{
			FileName: "bread.pptx", FilePath: "/docs/bread.pptx",
			Summary: "Baking with yeast.",
		}},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func typeQuery(t *testing.T, m Model, q string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(q)})
	return m
}

func TestSearchFlow(t *testing.T) {
	svc := &fakeSearcher{results: sampleResults()}
	m := New(svc, &fakeOpener{}, 10, "/db")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, m.View(), "No results yet.")

	m = typeQuery(t, m, "qubits")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.searching)

	m, _ = update(t, m, cmd())
	assert.Equal(t, "qubits", svc.query)
	assert.Equal(t, 10, svc.topK)
	assert.False(t, m.searching)
	assert.Len(t, m.results, 2)
	assert.Contains(t, m.status, "2 results")
	assert.Contains(t, m.renderCurrentResult(), "quantum.pdf")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	assert.Contains(t, m.renderCurrentResult(), "bread.pptx")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, m.cursor)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.cursor)
}

func TestSearchError(t *testing.T) {
	svc := &fakeSearcher{err: errors.New("no vector database has been built")}
	m := New(svc, nil, 10, "")
	m = typeQuery(t, m, "anything")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.status, "Error: no vector database")
	assert.Empty(t, m.results)
}

func TestEmptyQueryDoesNotSearch(t *testing.T) {
	svc := &fakeSearcher{}
	m := New(svc, nil, 10, "")
	m = typeQuery(t, m, "   ")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.searching)
	assert.Empty(t, svc.query)
}

func TestOpenSelected(t *testing.T) {
	op := &fakeOpener{}
	m := New(&fakeSearcher{}, op, 10, "")
	m, _ = update(t, m, searchResultMsg{query: "q", results: sampleResults()})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	assert.Equal(t, []string{"/docs/bread.pptx"}, op.opened)
	assert.Equal(t, "Opened bread.pptx", m.status)

	op.err = errors.New("boom")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	assert.Equal(t, "Error: boom", m.status)
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Introduces quantum hardware. Qubits hold superpositions. Gates act on them."
	out := highlightBestSentence(text, "superpositions")
	assert.Contains(t, out, "Introduces quantum hardware.")
	assert.Contains(t, out, "Qubits hold superpositions.")

	assert.Equal(t, "", highlightBestSentence("", "x"))
	assert.Equal(t, "A. B.", highlightBestSentence("A. B.", ""))
}

func TestTokenOverlapScore(t *testing.T) {
	q := toTokenSet("qubits gates")
	assert.Equal(t, 2, tokenOverlapScore(q, "Gates act on qubits and qubits"))
	assert.Equal(t, 0, tokenOverlapScore(q, "Baking bread"))
	assert.Equal(t, 1, tokenOverlapScore(toTokenSet("向量检索"), "本文介绍向量的计算"))
}
