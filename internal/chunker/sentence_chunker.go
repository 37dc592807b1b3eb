package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SentenceChunker splits oversized text blocks into sentence windows with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	maxRunes          int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences, maxRunes int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		maxRunes:          maxRunes,
		splitter:          regexp.MustCompile(`[^.!?。！？；;]+(?:[.!?。！？；;]+|$)`),
	}
}

// Sentences returns the trimmed, non-empty sentences of text.
func (c *SentenceChunker) Sentences(text string) []string {
	raw := c.splitter.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Chunk groups the sentences of text into windows of sentencesPerChunk.
func (c *SentenceChunker) Chunk(text string) []string {
	sentences := c.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, joinSentences(sentences[i:end]))
		if end == len(sentences) {
			break
		}
		i = max(end-c.overlapSentences, 0)
	}
	return chunks
}

// SplitBlocks chunks every block longer than maxRunes and passes the rest through.
// A non-positive maxRunes disables splitting.
func (c *SentenceChunker) SplitBlocks(blocks []string) []string {
	if c.maxRunes <= 0 {
		return blocks
	}
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if utf8.RuneCountInString(b) <= c.maxRunes {
			out = append(out, b)
			continue
		}
		out = append(out, c.Chunk(b)...)
	}
	return out
}

// joinSentences separates sentences with a space unless both sides are CJK text.
func joinSentences(sentences []string) string {
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			prev, _ := utf8.DecodeLastRuneInString(sentences[i-1])
			next, _ := utf8.DecodeRuneInString(s)
			if prev < utf8.RuneSelf || next < utf8.RuneSelf {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s)
	}
	return b.String()
}
