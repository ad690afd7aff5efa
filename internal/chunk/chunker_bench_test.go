package chunk

import (
	"fmt"
	"strings"
	"testing"
)

// syntheticMemoryDoc builds a Markdown document with the given number of
// sections, each a heading, a short paragraph, and an occasional fenced
// code block — the same shape scripts/generate-test-corpus.go produces,
// scaled down to stay in-process.
func syntheticMemoryDoc(sections int) string {
	var b strings.Builder
	for i := 0; i < sections; i++ {
		fmt.Fprintf(&b, "## Section %d\n\n", i)
		b.WriteString("Some notes about an incident, a deploy, or a decision made during this session. ")
		b.WriteString("Enough prose to fill out a paragraph worth chunking.\n\n")
		if i%5 == 0 {
			b.WriteString("```bash\nkubectl rollout status deploy/example\n```\n\n")
		}
	}
	return b.String()
}

// BenchmarkChunk_Scale measures chunking throughput at increasing document
// sizes, the dimension most likely to regress if the sliding window or
// fence-tracking logic grows an accidental quadratic pass.
func BenchmarkChunk_Scale(b *testing.B) {
	scales := []int{10, 100, 1000}
	c := New()
	opts := Options{Tokens: 400, Overlap: 40}

	for _, scale := range scales {
		text := syntheticMemoryDoc(scale)
		b.Run(fmt.Sprintf("sections_%d", scale), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = c.Chunk(text, opts)
			}
		})
	}
}
