package memindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	idxerrors "github.com/openclaw/memindex/internal/errors"
)

// ReadFileRequest is the readFile operation's parameters: relPath is
// workspace-relative (or rooted under one of the configured extra
// paths); from/lines optionally slice the result to a 1-indexed line
// range.
type ReadFileRequest struct {
	RelPath string
	From    int
	Lines   int
}

// ReadFile returns the content of a Markdown file confined to the
// workspace or one of the configured extra paths, rejecting any path
// that escapes those roots and any symlink anywhere along the way — the
// same confinement scanMemoryFiles applies during sync, reused here
// because readFile accepts caller-supplied paths rather than paths this
// process already discovered itself.
func (m *Manager) ReadFile(req ReadFileRequest) (string, error) {
	if filepath.Ext(req.RelPath) != ".md" {
		return "", idxerrors.New(idxerrors.ErrCodePathDenied, "readFile: only .md files are allowed: "+req.RelPath, nil)
	}

	abs, err := confine(m.cfg.Paths.WorkspaceDir, m.cfg.Paths.ExtraPaths, req.RelPath)
	if err != nil {
		return "", err
	}

	if err := rejectSymlinkAnywhere(abs); err != nil {
		return "", idxerrors.New(idxerrors.ErrCodePathDenied, "readFile: symlink rejected: "+req.RelPath, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", idxerrors.New(idxerrors.ErrCodePathDenied, "readFile: "+req.RelPath, err)
	}

	if req.Lines <= 0 {
		return string(data), nil
	}
	return sliceLines(string(data), req.From, req.Lines), nil
}

// confine resolves relPath against workspaceDir (or, failing that, each
// extraPath) and rejects the result unless it stays within that root —
// the same ".." / absolute-path escape check PathDenied names.
func confine(workspaceDir string, extraPaths []string, relPath string) (string, error) {
	if candidate, ok := withinRoot(workspaceDir, relPath); ok {
		return candidate, nil
	}
	for _, extra := range extraPaths {
		// withinRoot also covers extra being the file itself rather than
		// a directory containing it: relPath == extra resolves to "." and
		// passes the containment check below.
		if candidate, ok := withinRoot(extra, relPath); ok {
			return candidate, nil
		}
	}
	return "", idxerrors.New(idxerrors.ErrCodePathDenied, "readFile: path outside workspace and extra paths: "+relPath, nil)
}

func withinRoot(root, relPath string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}

	var absCandidate string
	if filepath.IsAbs(relPath) {
		absCandidate = filepath.Clean(relPath)
	} else {
		absCandidate, err = filepath.Abs(filepath.Join(absRoot, relPath))
		if err != nil {
			return "", false
		}
	}

	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return absCandidate, true
}

// rejectSymlinkAnywhere walks up from path to the filesystem root,
// Lstat-ing every component, so a symlinked ancestor directory can't
// smuggle a file past a leaf-only check. Mirrors the sync engine's file
// discovery confinement (scanMemoryFiles).
func rejectSymlinkAnywhere(path string) error {
	cur := path
	for {
		info, err := os.Lstat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return &fs.PathError{Op: "lstat", Path: cur, Err: fs.ErrPermission}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil
		}
		cur = parent
	}
}

// sliceLines returns lines [from, from+count) (1-indexed, inclusive
// start) joined back with newlines. Out-of-range requests return
// whatever overlap exists, empty string if none.
func sliceLines(text string, from, count int) string {
	if from <= 0 {
		from = 1
	}
	lines := strings.Split(text, "\n")
	start := from - 1
	if start >= len(lines) {
		return ""
	}
	end := start + count
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}
