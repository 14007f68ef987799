package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sentence(n int) string {
	return strings.Repeat("a", n-1) + "."
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("The archive holds a surprising number of letters. ", 40)
	first := Chunk(text, 200)
	second := Chunk(text, 200)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestChunk_RespectsBounds(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString(sentence(120))
		b.WriteString(" ")
	}
	chunks := Chunk(b.String(), 300)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		n := len([]rune(c))
		require.LessOrEqual(t, n, 300, "chunk exceeds max size: %d", n)
		require.GreaterOrEqual(t, n, MinChunkLength, "chunk below minimum: %d", n)
	}
}

func TestChunk_FlushesOnOverflow(t *testing.T) {
	// Two sentences of 80 runes fit in one 200-rune chunk; the third forces a flush.
	text := sentence(80) + " " + sentence(80) + " " + sentence(80)
	chunks := Chunk(text, 200)
	require.Len(t, chunks, 2)
}

func TestChunk_DiscardsShortFragments(t *testing.T) {
	chunks := Chunk("Too short.", DefaultMaxChunkSize)
	require.Empty(t, chunks)
}

func TestChunk_HardSplitsOversizedSentence(t *testing.T) {
	text := sentence(2500)
	chunks := Chunk(text, 1000)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 1000)
	}
	require.Equal(t, 2500, len([]rune(strings.Join(chunks, ""))))
}

func TestChunk_KeepsUnterminatedTail(t *testing.T) {
	tail := strings.Repeat("b", 120) // no terminal punctuation
	chunks := Chunk(sentence(100)+" "+tail, 1000)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0], tail)
}

func TestChunk_EmptyInput(t *testing.T) {
	require.Nil(t, Chunk("", 1000))
	require.Nil(t, Chunk("   \n\t  ", 1000))
}
