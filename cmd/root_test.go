package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, destination string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fileset-sync.yaml")
	body := "filesets:\n" +
		"  - id: dns\n" +
		"    fileset_uri: https://example.com/dns.fileset\n" +
		"    destination: " + destination + "\n" +
		"    base: dns\n" +
		"    extension: mtbl\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRootCommand_NoArgsPrintsHelp(t *testing.T) {
	// An empty, non-nil argument list: with nil, cobra falls back to
	// os.Args[1:], which under go test holds the test binary's own flags.
	output, err := executeCommand(rootCmd, []string{}...)
	require.NoError(t, err)
	assert.Contains(t, output, "fileset-sync")
}

func TestConfigValidateCommand_ValidConfig(t *testing.T) {
	dest := t.TempDir()
	path := writeConfig(t, dest)

	output, err := executeCommand(rootCmd, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, output, "configuration OK: 1 fileset(s) configured")
	assert.Contains(t, output, "dns: https://example.com/dns.fileset -> "+dest)
}

func TestConfigValidateCommand_MissingDestination(t *testing.T) {
	path := writeConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := executeCommand(rootCmd, "config", "validate", "--config", path)
	assert.Error(t, err)
}

func TestConfigValidateCommand_UnreadableFile(t *testing.T) {
	_, err := executeCommand(rootCmd, "config", "validate", "--config", "/nonexistent/fileset-sync.yaml")
	assert.Error(t, err)
}

func TestStatusCommand_ReportsScanCounts(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.2014.Y.mtbl"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.201401.M.mtbl"), []byte("x"), 0644))
	path := writeConfig(t, dest)

	output, err := executeCommand(rootCmd, "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, output, "dns ("+dest+"):")
	assert.Contains(t, output, "local files:      2")
	assert.Contains(t, output, "redundant:        1")
}

func TestPruneCommand_DryRunReportsWithoutRemoving(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.2014.Y.mtbl"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.201401.M.mtbl"), []byte("x"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Remote lists both files, so nothing is obsolete; the month file is
		// redundant under the local year file, and with minimal: true the
		// redundant prune schedules it for deletion.
		w.Write([]byte("dns.2014.Y.mtbl\ndns.201401.M.mtbl\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "fileset-sync.yaml")
	body := "filesets:\n" +
		"  - id: dns\n" +
		"    fileset_uri: " + srv.URL + "/dns.fileset\n" +
		"    destination: " + dest + "\n" +
		"    base: dns\n" +
		"    extension: mtbl\n" +
		"    minimal: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	output, err := executeCommand(rootCmd, "prune", "--dry-run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, output, "dns: 1 file(s) would be removed")
	assert.Contains(t, output, "dns.201401.M.mtbl")

	entries, readErr := os.ReadDir(dest)
	require.NoError(t, readErr)
	assert.Len(t, entries, 2, "dry-run must not touch the destination")
}

func TestPruneCommand_AppliesDeletionsWithoutDryRun(t *testing.T) {
	// cobra does not reset flag variables between Execute calls on the
	// shared rootCmd, so --dry-run from an earlier test would still be set.
	pruneDryRun = false
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.2014.Y.mtbl"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "dns.201401.M.mtbl"), []byte("x"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dns.2014.Y.mtbl\ndns.201401.M.mtbl\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "fileset-sync.yaml")
	body := "filesets:\n" +
		"  - id: dns\n" +
		"    fileset_uri: " + srv.URL + "/dns.fileset\n" +
		"    destination: " + dest + "\n" +
		"    base: dns\n" +
		"    extension: mtbl\n" +
		"    minimal: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := executeCommand(rootCmd, "prune", "--config", path)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dest, "dns.201401.M.mtbl"))
	assert.True(t, os.IsNotExist(statErr), "redundant month file should have been removed")
	_, statErr = os.Stat(filepath.Join(dest, "dns.2014.Y.mtbl"))
	assert.NoError(t, statErr, "year file should survive")
}
