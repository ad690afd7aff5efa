package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// fileEntry is one discovered memory document, pre-hash.
type fileEntry struct {
	Path    string // workspace-relative, forward slashes
	AbsPath string
	MtimeMs int64
	Size    int64
	Hash    string
}

// scanMemoryFiles enumerates MEMORY.md, memory.md, memory/, and every
// extraPath under workspaceDir, rejecting symlinks at any step. Narrowed
// to Markdown-only, with no language-detection matrix — this index has
// exactly one content type.
func scanMemoryFiles(workspaceDir string, extraPaths []string) ([]fileEntry, error) {
	var out []fileEntry

	roots := []string{
		filepath.Join(workspaceDir, "MEMORY.md"),
		filepath.Join(workspaceDir, "memory.md"),
		filepath.Join(workspaceDir, "memory"),
	}
	for _, root := range roots {
		entries, err := walkMarkdown(workspaceDir, root)
		if err != nil {
			continue // missing, symlinked, or otherwise inaccessible root: skip it
		}
		out = append(out, entries...)
	}

	for _, extra := range extraPaths {
		entries, err := walkMarkdown(workspaceDir, extra)
		if err != nil {
			continue
		}
		out = append(out, entries...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// walkMarkdown walks root (a file or directory), rejecting symlinks
// anywhere along the way — the root itself, any parent directory
// component, and any entry encountered during traversal. relTo is the
// directory Path fields are computed relative to.
func walkMarkdown(relTo, root string) ([]fileEntry, error) {
	if err := rejectSymlinkAnywhere(root); err != nil {
		return nil, err
	}

	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, nil
	}

	if !info.IsDir() {
		if filepath.Ext(root) != ".md" {
			return nil, nil
		}
		fe, err := statEntry(relTo, root, info)
		if err != nil {
			return nil, err
		}
		return []fileEntry{fe}, nil
	}

	var out []fileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".md" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fe, err := statEntry(relTo, path, info)
		if err != nil {
			return nil
		}
		out = append(out, fe)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rejectSymlinkAnywhere walks up from path to its filesystem root,
// Lstat-ing every component, so a symlinked ancestor directory can't
// smuggle a file past the leaf-only check a naive Lstat(path) would do.
func rejectSymlinkAnywhere(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	cur := abs
	for {
		info, err := os.Lstat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				return nil // a missing ancestor is not a symlink; the leaf check below handles NotExist
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

func statEntry(relTo, absPath string, info fs.FileInfo) (fileEntry, error) {
	relPath, err := filepath.Rel(relTo, absPath)
	if err != nil {
		relPath = absPath
	}
	hash, err := hashFile(absPath)
	if err != nil {
		return fileEntry{}, err
	}
	return fileEntry{
		Path:    filepath.ToSlash(relPath),
		AbsPath: absPath,
		MtimeMs: info.ModTime().UnixMilli(),
		Size:    info.Size(),
		Hash:    hash,
	}, nil
}

// hashFile returns a sha256 hex digest of a file's content — a file is
// indexed when this differs from the stored files.hash.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashText returns a sha256 hex digest of in-memory text, used for
// session transcripts whose content is assembled rather than read
// verbatim from one file.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
