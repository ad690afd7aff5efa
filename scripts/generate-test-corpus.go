//go:build ignore

// Package main generates a synthetic memory-document and session-transcript
// corpus for benchmarking the chunker and sync engine at scale.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of memory documents to generate")
	sessions  = flag.Int("sessions", 50, "Number of session transcripts to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"deployment pipeline", "incident postmortem", "API design review",
	"onboarding checklist", "architecture decision", "migration plan",
	"runbook", "retro notes", "customer escalation", "performance tuning",
	"security review", "release checklist", "cost optimization",
	"data model", "capacity planning", "on-call handoff",
}

var actions = []string{
	"rotated credentials", "rolled back the deploy", "added a new index",
	"paged the on-call engineer", "updated the runbook", "closed the ticket",
	"merged the fix", "reverted the migration", "scaled up the worker pool",
	"filed a follow-up issue", "restarted the service", "archived the project",
}

var names = []string{"Ravi", "Priya", "Jordan", "Sam", "Morgan", "Alex", "Taylor", "Chen"}

func randomOf(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func main() {
	flag.Parse()
	rand.Seed(*seed)

	memDir := filepath.Join(*outputDir, "memory")
	sessDir := filepath.Join(*outputDir, "sessions")
	for _, d := range []string{memDir, sessDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "error creating %s: %v\n", d, err)
			os.Exit(1)
		}
	}

	fmt.Printf("generating %d memory documents and %d session transcripts in %s...\n", *numFiles, *sessions, *outputDir)

	for i := 0; i < *numFiles; i++ {
		if err := generateMemoryDoc(memDir, i); err != nil {
			fmt.Fprintf(os.Stderr, "error generating memory doc %d: %v\n", i, err)
		}
	}
	for i := 0; i < *sessions; i++ {
		if err := generateSessionTranscript(sessDir, i); err != nil {
			fmt.Fprintf(os.Stderr, "error generating session %d: %v\n", i, err)
		}
	}

	fmt.Println("done.")
}

func generateMemoryDoc(dir string, index int) error {
	topic := randomOf(topics)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.Title(topic))
	fmt.Fprintf(&b, "## Summary\n\nNotes from a %s session involving %s and %s.\n\n", topic, randomOf(names), randomOf(names))

	sections := 3 + rand.Intn(5)
	for s := 0; s < sections; s++ {
		fmt.Fprintf(&b, "## %s\n\n", strings.Title(randomOf(topics)))
		lines := 2 + rand.Intn(6)
		for l := 0; l < lines; l++ {
			fmt.Fprintf(&b, "- %s %s.\n", randomOf(names), randomOf(actions))
		}
		b.WriteString("\n")
		if rand.Intn(3) == 0 {
			b.WriteString("```bash\n")
			fmt.Fprintf(&b, "kubectl rollout status deploy/%s\n", strings.ReplaceAll(topic, " ", "-"))
			b.WriteString("```\n\n")
		}
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%d.md", strings.ReplaceAll(topic, " ", "_"), index))
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}

type transcriptMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

func generateSessionTranscript(dir string, index int) error {
	var b strings.Builder
	rounds := 5 + rand.Intn(20)
	for r := 0; r < rounds; r++ {
		user := transcriptMessage{Type: "message"}
		user.Message.Role = "user"
		user.Message.Content = fmt.Sprintf("%s needs help with the %s.", randomOf(names), randomOf(topics))
		line, err := json.Marshal(user)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteString("\n")

		assistant := transcriptMessage{Type: "message"}
		assistant.Message.Role = "assistant"
		assistant.Message.Content = fmt.Sprintf("I %s and updated the notes accordingly.", randomOf(actions))
		line, err = json.Marshal(assistant)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteString("\n")
	}

	filename := filepath.Join(dir, fmt.Sprintf("session-%d.jsonl", index))
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}
