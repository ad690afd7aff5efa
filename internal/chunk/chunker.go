// Package chunk splits Markdown memory documents into bounded,
// content-addressed chunks (C1). The chunker is stateless: it knows
// nothing about files, sources, or models, only about splitting text.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Chunk is one ordered slice of a Markdown document.
type Chunk struct {
	Text      string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Hash      string
}

// Options configures the sliding window.
type Options struct {
	// Tokens is the target window size. The char budget is derived from
	// this with a deliberately conservative ~1 char-per-token ratio (a
	// tunable constant, not a real tokenizer).
	Tokens int
	// Overlap is the number of trailing lines carried into the head of
	// the next window. Not applied to the first window.
	Overlap int
}

const minChars = 64

// Chunker splits Markdown text into chunks. It holds no state and can be
// shared across goroutines.
type Chunker struct{}

// New returns a Markdown chunker.
func New() *Chunker { return &Chunker{} }

// SupportedExtensions reports the file extensions this chunker handles.
func (c *Chunker) SupportedExtensions() []string { return []string{".md"} }

// Close is a no-op; the chunker holds no resources.
func (c *Chunker) Close() error { return nil }

// Chunk splits text into an ordered list of chunks: a line-oriented
// sliding window that never splits a fenced code block,
// prefers to break on paragraph (blank-line) boundaries so it doesn't cut
// a URL or sentence in half, truncates at the last safe boundary on
// overflow, and drops blank-only chunks.
func (c *Chunker) Chunk(text string, opts Options) []Chunk {
	maxChars := opts.Tokens
	if maxChars < minChars {
		maxChars = minChars
	}
	overlap := opts.Overlap
	if overlap < 0 {
		overlap = 0
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	fenceOpenAfter := computeFenceState(lines)

	var chunks []Chunk
	start := 0
	first := true
	for start < len(lines) {
		end := greedyEnd(lines, start, maxChars)
		end = safeBoundary(lines, fenceOpenAfter, start, end)

		chunkText := strings.Join(lines[start:end+1], "\n")
		if strings.TrimSpace(chunkText) != "" {
			sum := sha256.Sum256([]byte(chunkText))
			chunks = append(chunks, Chunk{
				Text:      chunkText,
				StartLine: start + 1,
				EndLine:   end + 1,
				Hash:      hex.EncodeToString(sum[:]),
			})
		}

		if end >= len(lines)-1 {
			break
		}

		next := end + 1
		if !first {
			next -= overlap
		}
		if next <= start {
			next = end + 1
		}
		start = next
		first = false
	}

	return chunks
}

// greedyEnd returns the 0-indexed last line to include in a window
// starting at start, bounded by maxChars, without regard to block
// boundaries (those are applied afterward by safeBoundary).
func greedyEnd(lines []string, start, maxChars int) int {
	chars := 0
	end := start
	for end < len(lines) {
		lineLen := len(lines[end]) + 1
		if chars+lineLen > maxChars && end > start {
			return end - 1
		}
		chars += lineLen
		end++
	}
	return len(lines) - 1
}

// safeBoundary walks end backward (never before start) to the nearest
// line after which it is safe to break: not inside a fenced code block,
// and preferably a blank line so a paragraph (and any URL within it)
// isn't split. If the whole window from start to end sits inside one
// open fence, end is instead extended forward until the fence closes —
// an oversized chunk is preferable to a corrupted one.
func safeBoundary(lines []string, fenceOpenAfter []bool, start, end int) int {
	if !fenceOpenAfter[end] {
		if blank := nearestBlankBoundary(lines, fenceOpenAfter, start, end); blank >= 0 {
			return blank
		}
		return end
	}

	// Inside a fence at the greedy boundary: extend forward to the close.
	for i := end; i < len(lines); i++ {
		if !fenceOpenAfter[i] {
			return i
		}
	}
	return len(lines) - 1
}

// nearestBlankBoundary looks backward from end for a blank line (or a
// line directly followed by one) that is also outside any fence, so the
// break doesn't land mid-paragraph.
func nearestBlankBoundary(lines []string, fenceOpenAfter []bool, start, end int) int {
	for i := end; i > start; i-- {
		if fenceOpenAfter[i] {
			continue
		}
		if strings.TrimSpace(lines[i]) == "" {
			return i
		}
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == "" {
			return i
		}
	}
	return -1
}

// computeFenceState returns, for each line index, whether a fenced code
// block (``` or ~~~) is still open immediately after that line.
func computeFenceState(lines []string) []bool {
	state := make([]bool, len(lines))
	open := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			open = !open
		}
		state[i] = open
	}
	return state
}
