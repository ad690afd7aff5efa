// Package batch implements the batch orchestrator (C5): greedy
// token-bounded packing of chunks into embedding calls, per-call retry
// with jitter, an optional provider-side asynchronous batch-job mode, and
// a one-way failure latch that falls the orchestrator back to
// per-request embedding for the remainder of the process.
package batch

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// MaxBatchTokens is the default per-batch token ceiling.
const MaxBatchTokens = 8000

// Item is one piece of text to embed, identified by a caller-assigned ID
// used both as the result map's key and, in batch-job mode, as the
// provider's custom_id correlation token.
type Item struct {
	ID     string
	Text   string
	Tokens int
}

// PackBatches greedily bin-packs items into batches whose summed token
// estimate stays at or under maxTokens. An item larger than maxTokens
// forms its own singleton batch. maxTokens <= 0 uses
// MaxBatchTokens.
func PackBatches(items []Item, maxTokens int) [][]Item {
	if maxTokens <= 0 {
		maxTokens = MaxBatchTokens
	}

	var batches [][]Item
	var current []Item
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, it := range items {
		if it.Tokens > maxTokens {
			flush()
			batches = append(batches, []Item{it})
			continue
		}
		if currentTokens+it.Tokens > maxTokens {
			flush()
		}
		current = append(current, it)
		currentTokens += it.Tokens
	}
	flush()

	return batches
}

// CustomID computes the deterministic batch-job correlation id for a
// chunk at a given position within its submitted batch: a hash of
// source:path:startLine:endLine:chunkHash:index.
func CustomID(source, path string, startLine, endLine int, chunkHash string, index int) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(endLine)))
	h.Write([]byte{0})
	h.Write([]byte(chunkHash))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))
}
