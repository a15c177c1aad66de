// Package chunk splits document text into fixed-size, overlapping windows.
package chunk

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxSize is the default number of characters per chunk.
	DefaultMaxSize = 1000
	// DefaultOverlap is the default number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// ErrInvalidConfig is returned for a size/overlap pair that cannot make progress.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Chunk is one ordinal-numbered window of document text.
type Chunk struct {
	ID   int
	Text string
}

// Splitter carries a validated size/overlap pair.
type Splitter struct {
	maxSize int
	overlap int
}

// NewSplitter validates the configuration once so Chunks cannot fail later.
func NewSplitter(maxSize, overlap int) (Splitter, error) {
	if err := validate(maxSize, overlap); err != nil {
		return Splitter{}, err
	}
	return Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// Chunks splits text into ordinal-numbered chunks starting at 0.
func (s Splitter) Chunks(text string) []Chunk {
	parts := split([]rune(text), s.maxSize, s.overlap)
	out := make([]Chunk, len(parts))
	for i, p := range parts {
		out[i] = Chunk{ID: i, Text: p}
	}
	return out
}

// Texts splits text and returns only the chunk strings.
func (s Splitter) Texts(text string) []string {
	return split([]rune(text), s.maxSize, s.overlap)
}

// Count returns how many chunks a text of n characters produces.
func (s Splitter) Count(n int) int {
	switch {
	case n <= 0:
		return 0
	case n <= s.maxSize:
		return 1
	}
	stride := s.maxSize - s.overlap
	return (n - s.overlap + stride - 1) / stride
}

// Split cuts text into windows of at most maxSize characters, advancing by
// maxSize-overlap each step. Lengths are counted in runes.
func Split(text string, maxSize, overlap int) ([]string, error) {
	if err := validate(maxSize, overlap); err != nil {
		return nil, err
	}
	return split([]rune(text), maxSize, overlap), nil
}

func validate(maxSize, overlap int) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= maxSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, overlap, maxSize)
	}
	return nil
}

func split(runes []rune, maxSize, overlap int) []string {
	n := len(runes)
	if n == 0 {
		return []string{}
	}

	stride := maxSize - overlap
	out := make([]string, 0, n/stride+1)
	for start := 0; ; start += stride {
		end := min(start+maxSize, n)
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return out
}
