package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mnemo/internal/chunker"
	"mnemo/internal/domain"
	"mnemo/internal/embedding/hashed"
	"mnemo/internal/textclean"
)

const fileNameWidth = 70

// Searcher is the TUI-facing subset of the service.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// FileOpener opens a document with the desktop's default application.
type FileOpener interface {
	OpenFile(path string) error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   Searcher
	opener    FileOpener
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.SearchResult
	header    string
	status    string
	cursor    int
	ready     bool
	searching bool
	lastQuery string
}

// New creates a new TUI model. header is shown under the title, typically the database folder.
func New(service Searcher, opener FileOpener, topK int, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		opener:   opener,
		topK:     topK,
		input:    ti,
		viewport: vp,
		header:   header,
		status:   "Type to search. ↑/↓ select, ctrl+o open, ctrl+c quit.",
	}
}

type searchResultMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

func (m Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Search(context.Background(), query, m.topK)
		return searchResultMsg{query: query, results: res, err: err}
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case searchResultMsg:
		m.searching = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.searching {
				m.searching = true
				m.status = fmt.Sprintf("Searching %q...", q)
				return m, m.search(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "ctrl+o":
			if len(m.results) > 0 && m.opener != nil {
				r := m.results[m.cursor]
				if err := m.opener.OpenFile(r.FilePath); err != nil {
					m.status = "Error: " + err.Error()
				} else {
					m.status = "Opened " + r.FileName
				}
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("Mnemo")
	header := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Result %d/%d  score=%.3f\n", m.cursor+1, len(m.results), r.Score)
	b.WriteString(fileStyle.Render(textclean.CutText(r.FileName, fileNameWidth)))
	b.WriteString("\n")
	b.WriteString(pathStyle.Render(r.FilePath))
	b.WriteString("\n\n")
	if len(r.Keywords) > 0 {
		b.WriteString(keywordStyle.Render(strings.Join(r.Keywords, " · ")))
		b.WriteString("\n\n")
	}
	b.WriteString(highlightBestSentence(r.Summary, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	fileStyle      = lipgloss.NewStyle().Bold(true)
	pathStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keywordStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	sentences = chunker.NewSentenceChunker(1, 0, 0)
	tokenizer = hashed.NewEmbedder(0)
)

// highlightBestSentence renders the sentence sharing the most terms with query highlighted.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	parts := sentences.Sentences(text)
	if len(parts) == 0 {
		parts = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(parts, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range parts {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range parts {
		sent := strings.TrimSpace(parts[i])
		if i == bestIdx && bestScore > 0 {
			parts[i] = highlightStyle.Render(sent)
		} else {
			parts[i] = sent
		}
	}
	return strings.Join(parts, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenizer.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range tokenizer.Tokenize(sentence) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
