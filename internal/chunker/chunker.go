// Package chunker splits document text into fixed-size, overlapping windows.
package chunker

import (
	"fmt"

	"github.com/starford/notesrag/internal/apperr"
)

// Default window policy.
const (
	DefaultMaxLen  = 1000
	DefaultOverlap = 200
)

// Piece is one window of text and its 0-based position in the document.
type Piece struct {
	Content string
	Index   int
}

// Chunker holds a validated window policy. Lengths are measured in runes.
type Chunker struct {
	maxLen  int
	overlap int
}

// New returns a Chunker for the given policy. An overlap that is not
// strictly smaller than maxLen would never advance and is rejected.
func New(maxLen, overlap int) (*Chunker, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("chunker: max length must be positive, got %d: %w", maxLen, apperr.ErrInvalidConfig)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d: %w", overlap, apperr.ErrInvalidConfig)
	}
	if overlap >= maxLen {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than max length %d: %w", overlap, maxLen, apperr.ErrInvalidConfig)
	}
	return &Chunker{maxLen: maxLen, overlap: overlap}, nil
}

// Default returns the 1000/200 chunker.
func Default() *Chunker {
	return &Chunker{maxLen: DefaultMaxLen, overlap: DefaultOverlap}
}

// MaxLen returns the window size.
func (c *Chunker) MaxLen() int { return c.maxLen }

// Overlap returns the number of runes repeated at the start of the next window.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the windows of text in reading order. Empty text yields no
// windows. The last window always ends at the end of text.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	step := c.maxLen - c.overlap
	out := make([]Piece, 0, Count(n, c.maxLen, c.overlap))
	for start := 0; start < n; start += step {
		end := min(start+c.maxLen, n)
		out = append(out, Piece{Content: string(runes[start:end]), Index: len(out)})
		if end == n {
			break
		}
	}
	return out
}

// Split is a convenience wrapper that validates the policy and splits text.
func Split(text string, maxLen, overlap int) ([]Piece, error) {
	c, err := New(maxLen, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// Count returns how many windows a text of n runes produces.
func Count(n, maxLen, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= maxLen {
		return 1
	}
	step := maxLen - overlap
	return 1 + (n-maxLen+step-1)/step
}
