package sync

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw/memindex/internal/config"
)

// sessionsPathPrefix is the reserved prefix session file records live
// under, so their paths can never collide with memory paths sharing the
// same relative name.
const sessionsPathPrefix = "sessions/"

// sessionTranscript is one parsed transcript: its assembled text (every
// kept message rendered as "Role: text", one per line) plus the file
// metadata needed to decide whether reindexing is required.
type sessionTranscript struct {
	Path    string // "sessions/<relpath>"
	AbsPath string
	MtimeMs int64
	Size    int64
	Text    string
	Hash    string // over Text, not raw file bytes
}

// rawMessage mirrors the line-delimited transcript record shape: only
// type=="message" records with
// message.role in {user, assistant} are consumed.
type rawMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var whitespaceCollapser = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// scanSessionFiles enumerates every non-symlink file under
// cfg.Paths.SessionsDir, parses it as a transcript, and returns one
// sessionTranscript per file that yields at least one kept message.
func scanSessionFiles(cfg config.Config) ([]sessionTranscript, error) {
	dir := cfg.Paths.SessionsDir
	if dir == "" {
		return nil, nil
	}
	if err := rejectSymlinkAnywhere(dir); err != nil {
		return nil, nil
	}
	info, err := os.Lstat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return nil, nil
	}

	var out []sessionTranscript
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		text, perr := parseSessionTranscript(path)
		if perr != nil || strings.TrimSpace(text) == "" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		out = append(out, sessionTranscript{
			Path:    sessionsPathPrefix + filepath.ToSlash(rel),
			AbsPath: path,
			MtimeMs: fi.ModTime().UnixMilli(),
			Size:    fi.Size(),
			Text:    text,
			Hash:    hashText(text),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseSessionTranscript reads a line-delimited JSON transcript and
// renders it into the assembled "Role: text" form. Malformed lines are
// skipped silently (InvalidSessionLine) rather than
// failing the whole file.
func parseSessionTranscript(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec rawMessage
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Type != "message" {
			continue
		}
		role := rec.Message.Role
		if role != "user" && role != "assistant" {
			continue
		}
		text := extractMessageText(rec.Message.Content)
		text = strings.TrimSpace(collapseWhitespace(text))
		if text == "" {
			continue
		}
		lines = append(lines, capitalize(role)+": "+text)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// extractMessageText handles both content shapes the format allows: a
// bare string, or an array of {type, text} blocks of which only the
// "text" blocks are kept, concatenated with a space.
func extractMessageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " ")
}

func collapseWhitespace(s string) string {
	s = whitespaceCollapser.Replace(s)
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

func capitalize(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
