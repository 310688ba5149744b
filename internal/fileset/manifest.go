package fileset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName returns the path of the minimal or full manifest file for
// this fileset, per SPEC_FULL.md §4.4.
func ManifestName(dir, prefix string, minimal bool) string {
	if minimal {
		return filepath.Join(dir, prefix+".fileset")
	}
	return filepath.Join(dir, prefix+"-full.fileset")
}

// WriteManifest implements the atomic write protocol: read the existing
// manifest if present, skip the write if the symmetric difference of
// names is empty (avoiding spurious mtime churn for downstream watchers),
// otherwise write through a sibling tempfile and rename over the target.
// The rename is the linearization point.
func WriteManifest(dir, prefix string, minimal bool, names Set) error {
	path := ManifestName(dir, prefix, minimal)

	wanted := make(map[string]struct{}, len(names))
	for _, d := range names {
		wanted[d.Name] = struct{}{}
	}

	existing, err := readManifestNames(path)
	if err != nil {
		return fmt.Errorf("fileset: reading existing manifest %s: %w", path, err)
	}

	if existing != nil && setsEqual(existing, wanted) {
		return nil
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("fileset: creating manifest tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	// If anything below fails, the tempfile is removed; after a clean
	// rename tmpPath no longer exists and the deferred Remove is a no-op.
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, d := range Sorted(names) {
		if _, err := fmt.Fprintln(w, d.Name); err != nil {
			tmp.Close()
			return fmt.Errorf("fileset: writing manifest tempfile: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("fileset: flushing manifest tempfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fileset: closing manifest tempfile: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("fileset: chmod manifest tempfile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("fileset: renaming manifest into place: %w", err)
	}
	return nil
}

// readManifestNames returns nil (not an error) if the manifest does not
// exist yet.
func readManifestNames(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	names := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		names[line] = struct{}{}
	}
	return names, scanner.Err()
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ScanLocal globs dir for files matching {prefix}.*.[YQMWDHXm].{extension},
// parses each basename, and silently drops parse failures.
func ScanLocal(dir, prefix, extension string) (Set, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("%s.*.[YQMWDHXm].%s", prefix, extension))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("fileset: globbing local directory: %w", err)
	}

	out := NewSet()
	for _, m := range matches {
		base := filepath.Base(m)
		d, err := ParseName(base)
		if err != nil {
			continue
		}
		d.Directory = dir
		out.Add(d)
	}
	return out, nil
}

// ListTemporaryFiles globs the hidden-tempfile sibling pattern of the
// download manager's worker tempfiles: {dir}/.{prefix}.*.{extension}.*
// The manifest writer's tempfiles (.{prefix}.fileset.*) do not match it.
func ListTemporaryFiles(dir, prefix, extension string) ([]string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf(".%s.*.%s.*", prefix, extension))
	return filepath.Glob(pattern)
}
