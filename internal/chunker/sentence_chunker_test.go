package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentencesKeepsTrailingText(t *testing.T) {
	c := NewSentenceChunker(2, 0, 0)
	got := c.Sentences("First one. Second one! Tail without stop")
	assert.Equal(t, []string{"First one.", "Second one!", "Tail without stop"}, got)
}

func TestSentencesCJK(t *testing.T) {
	c := NewSentenceChunker(2, 0, 0)
	got := c.Sentences("市场增长。利润下降！原因？")
	assert.Equal(t, []string{"市场增长。", "利润下降！", "原因？"}, got)
}

func TestChunkWithOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 1, 0)
	got := c.Chunk("A one. B two. C three.")
	assert.Equal(t, []string{"A one. B two.", "B two. C three."}, got)
}

func TestChunkJoinsCJKWithoutSpace(t *testing.T) {
	c := NewSentenceChunker(3, 0, 0)
	assert.Equal(t, []string{"甲。乙。"}, c.Chunk("甲。乙。"))
}

func TestChunkEmpty(t *testing.T) {
	c := NewSentenceChunker(0, -1, 0)
	assert.Nil(t, c.Chunk("   "))
}

func TestSplitBlocks(t *testing.T) {
	c := NewSentenceChunker(1, 0, 20)
	long := strings.Repeat("word ", 3) + "end. " + strings.Repeat("more ", 3) + "stop."
	got := c.SplitBlocks([]string{"short block", long})
	assert.Equal(t, []string{"short block", "word word word end.", "more more more stop."}, got)

	disabled := NewSentenceChunker(1, 0, 0)
	assert.Equal(t, []string{long}, disabled.SplitBlocks([]string{long}))
}
