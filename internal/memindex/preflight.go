package memindex

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/openclaw/memindex/internal/config"
)

const (
	minDiskSpaceBytes  = 100 * 1024 * 1024
	minFileDescriptors = 1024
)

// PreflightStatus is a three-valued check outcome.
type PreflightStatus int

const (
	PreflightPass PreflightStatus = iota
	PreflightWarn
	PreflightFail
)

func (s PreflightStatus) String() string {
	switch s {
	case PreflightPass:
		return "pass"
	case PreflightWarn:
		return "warn"
	case PreflightFail:
		return "fail"
	default:
		return "unknown"
	}
}

// PreflightResult is one named, structured check, surfaced through
// Status() rather than printed to a terminal — this manager has no CLI.
type PreflightResult struct {
	Name    string
	Status  PreflightStatus
	Message string
}

// runPreflight runs the disk-space, file-descriptor, and data-directory
// writability checks once at manager construction and returns their
// results for Status() to surface. None of these gate construction — a
// warning here means degraded operation, not a refusal to start.
func runPreflight(cfg config.Config) []PreflightResult {
	dataDir := filepath.Dir(cfg.Store.Path)
	return []PreflightResult{
		checkDiskSpace(dataDir),
		checkFileDescriptors(),
		checkWritable(dataDir),
	}
}

func checkDiskSpace(path string) PreflightResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return PreflightResult{Name: "disk_space", Status: PreflightWarn, Message: fmt.Sprintf("cannot check disk space: %v", err)}
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < minDiskSpaceBytes {
		return PreflightResult{Name: "disk_space", Status: PreflightFail, Message: fmt.Sprintf("%d bytes free, need %d", available, minDiskSpaceBytes)}
	}
	return PreflightResult{Name: "disk_space", Status: PreflightPass, Message: fmt.Sprintf("%d bytes free", available)}
}

func checkFileDescriptors() PreflightResult {
	if runtime.GOOS == "windows" {
		return PreflightResult{Name: "file_descriptors", Status: PreflightPass, Message: "not applicable on windows"}
	}
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return PreflightResult{Name: "file_descriptors", Status: PreflightWarn, Message: fmt.Sprintf("cannot check rlimit: %v", err)}
	}
	if rlimit.Cur < minFileDescriptors {
		return PreflightResult{Name: "file_descriptors", Status: PreflightWarn, Message: fmt.Sprintf("%d open-file limit, recommend %d", rlimit.Cur, minFileDescriptors)}
	}
	return PreflightResult{Name: "file_descriptors", Status: PreflightPass, Message: fmt.Sprintf("%d open-file limit", rlimit.Cur)}
}

func checkWritable(dir string) PreflightResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PreflightResult{Name: "writable_data_dir", Status: PreflightFail, Message: fmt.Sprintf("%s not creatable: %v", dir, err)}
	}
	testFile := filepath.Join(dir, ".memindex-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		return PreflightResult{Name: "writable_data_dir", Status: PreflightFail, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	_ = f.Close()
	_ = os.Remove(testFile)
	return PreflightResult{Name: "writable_data_dir", Status: PreflightPass, Message: fmt.Sprintf("%s is writable", dir)}
}
