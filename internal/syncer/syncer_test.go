package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farsightsec/fileset-sync/internal/fileset"
	"github.com/farsightsec/fileset-sync/internal/notify"
)

// recordingNotifier captures every Event it receives, for asserting on
// what a coordinator tick reported without standing up a real sink.
type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestNew_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{FilesetURI: "https://example.com/dns.fileset", Destination: dir}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "mtbl", c.cfg.Extension)
	assert.Equal(t, 30*time.Minute, c.cfg.Frequency)
	assert.Equal(t, 60*time.Second, c.cfg.RetryTimeout)
	assert.Equal(t, 4, c.cfg.MaxDownloads)
	assert.Equal(t, "dns", c.cfg.Base, "base is derived from the manifest URI when not set")
}

func TestNew_RejectsMissingDestination(t *testing.T) {
	_, err := New(Config{FilesetURI: "https://example.com/dns.fileset", Destination: filepath.Join(t.TempDir(), "missing")}, nil, nil)
	assert.Error(t, err)
}

func TestNew_InvalidCronSchedule(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Config{
		FilesetURI:            "https://example.com/dns.fileset",
		Destination:           dir,
		RemoteRefreshSchedule: "not a schedule",
	}, nil, nil)
	assert.Error(t, err)
}

func TestNew_EveryCronSchedule(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{
		FilesetURI:            "https://example.com/dns.fileset",
		Destination:           dir,
		RemoteRefreshSchedule: "@every 1h",
	}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.schedule)
}

func TestBaseFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://example.com/dns.fileset", "dns"},
		{"https://example.com/data/dns.fileset", "dns"},
		{"https://example.com/dns-full.fileset", "dns-full"},
	}
	for _, tt := range tests {
		got, err := baseFromURI(tt.uri)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDueForRemoteRefresh(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{FilesetURI: "https://example.com/dns.fileset", Destination: dir}, nil, nil)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, c.dueForRemoteRefresh(now), "zero-value nextRemoteRefresh is always due")

	c.nextRemoteRefresh = now.Add(time.Hour)
	assert.False(t, c.dueForRemoteRefresh(now))
}

// TestCoordinator_ScenarioOne_InitialPopulation exercises spec scenario 1
// end to end against a real HTTP server: empty destination, a seven-entry
// remote manifest, and a worker drain. All seven files must land on disk
// and the minimal manifest must list them in the §3 total order.
func TestCoordinator_ScenarioOne_InitialPopulation(t *testing.T) {
	names := []string{
		"dns.2014.Y.mtbl",
		"dns.201501.M.mtbl",
		"dns.20150201.W.mtbl",
		"dns.20150208.D.mtbl",
		"dns.20150209.0000.H.mtbl",
		"dns.20150209.0100.X.mtbl",
		"dns.20150209.0110.m.mtbl",
	}
	manifestBody := strings.Join(names, "\n") + "\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/dns.fileset", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifestBody))
	})
	for _, n := range names {
		n := n
		mux.HandleFunc("/"+n, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("contents of " + n))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	coord, err := New(Config{
		FilesetURI:   srv.URL + "/dns.fileset",
		Destination:  dir,
		Base:         "dns",
		Extension:    "mtbl",
		Frequency:    time.Hour,
		MaxDownloads: 8,
		Minimal:      true,
	}, nil, nil)
	require.NoError(t, err)

	coord.manager.Start()
	defer coord.manager.Stop(true, 2*time.Second)

	ctx := t.Context()
	coord.tick(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		allPresent := true
		for _, n := range names {
			if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
				allPresent = false
				break
			}
		}
		if allPresent || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, n := range names {
		_, err := os.Stat(filepath.Join(dir, n))
		assert.NoError(t, err, "%s should be present after the worker drain", n)
	}

	// A further tick lets the coordinator observe the now-downloaded
	// files on its next local scan and settle the minimal manifest.
	coord.tick(ctx)

	manifestPath := fileset.ManifestName(dir, "dns", true)
	body, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	gotLines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, names, gotLines, "manifest lists exactly the seven files in total order")
}

// TestCoordinator_Tick_NotifiesOnPruneOnlyCycle exercises the redundancy
// prune of spec scenario 3 with nothing to download: a month file already
// redundant under a locally-present year file must still produce exactly
// one notification reporting the prune, even though no file was missing.
func TestCoordinator_Tick_NotifiesOnPruneOnlyCycle(t *testing.T) {
	manifestBody := "dns.2014.Y.mtbl\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/dns.fileset", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifestBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dns.2014.Y.mtbl"), []byte("year contents"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dns.201401.M.mtbl"), []byte("month contents"), 0644))

	rec := &recordingNotifier{}
	coord, err := New(Config{
		FilesetURI:  srv.URL + "/dns.fileset",
		Destination: dir,
		Base:        "dns",
		Extension:   "mtbl",
		Frequency:   time.Hour,
		Minimal:     true,
	}, rec, nil)
	require.NoError(t, err)

	coord.manager.Start()
	defer coord.manager.Stop(true, 2*time.Second)

	coord.tick(t.Context())

	require.Len(t, rec.events, 1, "a prune-only cycle must still notify")
	assert.Equal(t, 0, rec.events[0].Downloaded)
	assert.Equal(t, 1, rec.events[0].Pruned, "the redundant month file must be counted as pruned")

	_, err = os.Stat(filepath.Join(dir, "dns.201401.M.mtbl"))
	assert.True(t, os.IsNotExist(err), "the redundant month file should have been unlinked")
	_, err = os.Stat(filepath.Join(dir, "dns.2014.Y.mtbl"))
	assert.NoError(t, err, "the year file covering it survives")
}

// TestCoordinator_SweepsUnreferencedTempfilesOnly exercises spec scenario
// 6: a hidden tempfile with no open handle is unlinked, one held open by
// a process is preserved.
func TestCoordinator_SweepsUnreferencedTempfilesOnly(t *testing.T) {
	dir := t.TempDir()
	closedPath := filepath.Join(dir, ".dns.2000.Y.mtbl.AAA")
	openPath := filepath.Join(dir, ".dns.2001.Y.mtbl.BBB")

	require.NoError(t, os.WriteFile(closedPath, []byte("x"), 0644))

	f, err := os.Create(openPath)
	require.NoError(t, err)
	defer f.Close()

	coord, err := New(Config{FilesetURI: "https://example.com/dns.fileset", Destination: dir, Base: "dns", Extension: "mtbl"}, nil, nil)
	require.NoError(t, err)

	coord.sweepTempfiles(coord.log)

	_, err = os.Stat(closedPath)
	assert.True(t, os.IsNotExist(err), "a tempfile with no open handle should be swept")

	_, err = os.Stat(openPath)
	assert.NoError(t, err, "a tempfile held open by a process must be preserved")
}
