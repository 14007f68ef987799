// Package chunker splits extracted document text into retrieval-sized
// chunks. Identical input always yields an identical chunk sequence.
package chunker

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxChunkSize = 1000

	// Chunks below this length carry no useful retrieval signal.
	MinChunkLength = 50
)

var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

// Chunk splits text into sentence-aligned chunks of at most maxChunkSize
// runes, discarding fragments shorter than MinChunkLength.
func Chunk(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var out []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		chunk := strings.TrimSpace(buf.String())
		if len([]rune(chunk)) >= MinChunkLength {
			out = append(out, chunk)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sentence := range sentences {
		for _, piece := range splitOversized(sentence, maxChunkSize) {
			pieceLen := len([]rune(piece))
			if bufLen > 0 && bufLen+1+pieceLen > maxChunkSize {
				flush()
			}
			if bufLen > 0 {
				buf.WriteByte(' ')
				bufLen++
			}
			buf.WriteString(piece)
			bufLen += pieceLen
		}
	}
	flush()

	return out
}

// splitSentences breaks text at terminal punctuation. Trailing text without
// a terminator is kept as a final sentence.
func splitSentences(text string) []string {
	matches := sentenceSplitter.FindAllStringIndex(text, -1)
	var sentences []string
	last := 0
	for _, m := range matches {
		s := strings.TrimSpace(text[m[0]:m[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// splitOversized hard-splits a single sentence that by itself exceeds the
// chunk bound, so no emitted chunk can exceed maxChunkSize.
func splitOversized(sentence string, maxChunkSize int) []string {
	r := []rune(sentence)
	if len(r) <= maxChunkSize {
		return []string{sentence}
	}
	out := make([]string, 0, len(r)/maxChunkSize+1)
	for start := 0; start < len(r); start += maxChunkSize {
		end := start + maxChunkSize
		if end > len(r) {
			end = len(r)
		}
		piece := strings.TrimSpace(string(r[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
