// Package chunk splits raw text into bounded, overlapping fragments for
// embedding. Fragment boundaries are measured in runes so multi-byte text
// never gets cut mid-character.
package chunk

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by NewSplitter.
var (
	// ErrInvalidSize indicates the maximum chunk size is not positive.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrOverlapTooLarge indicates the overlap is negative or not smaller
	// than the chunk size. An overlap >= size would never advance.
	ErrOverlapTooLarge = errors.New("chunk overlap must be smaller than chunk size")
)

// Default splitter parameters. They mirror the values the knowledge base
// has historically been ingested with.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Splitter produces overlapping fragments of at most Size runes, where each
// consecutive pair shares exactly Overlap runes. Safe for concurrent use.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter. size is the maximum fragment length in
// runes; overlap is the number of trailing runes each fragment shares with
// the next.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the maximum fragment length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the shared rune count between consecutive fragments.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into fragments. Text no longer than the chunk size yields
// exactly one fragment; empty text yields none. Concatenating the fragments
// with each one's leading overlap removed reproduces the input.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.overlap
	}
}
