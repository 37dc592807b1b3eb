package domain

import "context"

// Document is the metadata record kept for every organized file.
type Document struct {
	FileName string   `json:"file_name"`
	FilePath string   `json:"file_path"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
}

// SearchResult is a stored document matched by a query, with its similarity score.
type SearchResult struct {
	ID int64 `json:"id"`
	Document
	Score float64 `json:"search_score"`
}

// Summary is the structured output produced for a single file.
type Summary struct {
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
}

// Summarizer turns the selected text blocks of a file into keywords and a summary.
type Summarizer interface {
	Summarize(ctx context.Context, fileName string, blocks []string) (Summary, error)
}

// Parser extracts cleaned text blocks from a document on disk.
type Parser interface {
	Parse(ctx context.Context, path string) ([]string, error)
	Extensions() []string
}
