//go:build linux

package syncer

import (
	"os"
	"path/filepath"
)

// isOpenElsewhere reports whether path has a file descriptor open in any
// process on the host, by resolving every /proc/*/fd/* symlink and
// comparing targets. Best-effort: a process racing to open path between
// the scan and the caller's unlink is vanishingly unlikely for abandoned
// tempfiles, and a scan error is treated as "open" so the sweep errs
// toward leaving the file rather than deleting something in use.
func isOpenElsewhere(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}

	procs, err := os.ReadDir("/proc")
	if err != nil {
		return true
	}

	for _, p := range procs {
		if !p.IsDir() {
			continue
		}
		fdDir := filepath.Join("/proc", p.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// Process exited mid-scan, or it's not a pid directory
			// (e.g. "self", "net") — neither is evidence of an open fd.
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if target == abs {
				return true
			}
		}
	}
	return false
}
