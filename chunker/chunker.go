package chunker

import (
	"strings"
)

// Splitter cuts text into size-bounded, overlapping chunks. It splits
// recursively on a priority list of separators, preferring the coarsest
// separator that still yields pieces under ChunkSize, then merges adjacent
// pieces back together so consecutive chunks share up to ChunkOverlap
// trailing/leading characters of the source text.
//
// Splitting is deterministic: identical input and parameters always produce
// identical chunks.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int

	separators []string
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Split returns the ordered chunks of text. Empty or whitespace-only input
// yields no chunks; input shorter than ChunkSize yields exactly one chunk.
// A chunk may exceed ChunkSize only when a single indivisible run of
// characters does.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the coarsest separator that actually occurs in the text. The
	// empty separator always matches and splits into single characters.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			remaining = nil
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	pieces := splitKeepingSeparator(text, separator)

	var chunks []string
	var fitting []string
	for _, piece := range pieces {
		if len(piece) < s.ChunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting)...)
			fitting = nil
		}
		if len(remaining) == 0 {
			// Indivisible with any finer separator; emit oversized.
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, remaining)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting)...)
	}
	return chunks
}

// splitKeepingSeparator splits text by sep, keeping each separator attached
// to the piece that follows it so concatenating all pieces reproduces text.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	raw := strings.Split(text, sep)
	pieces := make([]string, 0, len(raw))
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// merge greedily packs pieces into chunks of at most ChunkSize characters,
// carrying at most ChunkOverlap trailing characters into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		l := len(piece)
		if total+l > s.ChunkSize && len(current) > 0 {
			if chunk := strings.Join(current, ""); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Drop leading pieces until the retained tail fits in the
			// overlap budget and leaves room for the incoming piece.
			for total > s.ChunkOverlap || (total+l > s.ChunkSize && total > 0) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}
	if chunk := strings.Join(current, ""); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
