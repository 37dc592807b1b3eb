// Package parser extracts cleaned text blocks from PDF and PPTX files.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"mnemo/internal/chunker"
	"mnemo/internal/domain"
)

// Blocks longer than this are split into sentence windows before block selection.
const maxBlockRunes = 1200

// Registry dispatches parsing by file extension.
type Registry struct {
	byExt   map[string]domain.Parser
	chunker *chunker.SentenceChunker
}

// NewRegistry builds a registry from the given parsers. Later parsers win on
// extension conflicts.
func NewRegistry(parsers ...domain.Parser) *Registry {
	r := &Registry{
		byExt:   make(map[string]domain.Parser),
		chunker: chunker.NewSentenceChunker(5, 1, maxBlockRunes),
	}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// Default returns a registry with the PDF and PPTX parsers.
func Default() *Registry {
	return NewRegistry(NewPDFParser(), NewPPTXParser())
}

// Parse extracts the text blocks of path. Unknown extensions yield ErrUnsupportedType.
func (r *Registry) Parse(ctx context.Context, path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ext, domain.ErrUnsupportedType)
	}
	blocks, err := p.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.chunker.SplitBlocks(blocks), nil
}
