package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestFTPSource_Integration spins up a real FTP server and proves
// newFTPSource/Open read back exactly what was uploaded through it,
// rather than just exercising the scheme-dispatch error paths the
// unit tests in storage_test.go cover.
func TestFTPSource_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	username := "testuser"
	password := "testpass"
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "stilliard/pure-ftpd",
			Env: map[string]string{
				"FTP_USER_NAME": username,
				"FTP_USER_PASS": password,
				"FTP_USER_HOME": "/home/testuser",
				"PUBLICHOST":    "localhost",
			},
			ExposedPorts: []string{"21/tcp", "30000-30009/tcp"},
			WaitingFor:   wait.ForLog("Starting Pure-FTPd"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	port, err := container.MappedPort(ctx, "21")
	require.NoError(t, err)

	// Seed the fileset member directly through the ftp client library,
	// since storage.Source here is read-only (Open, no Save) — the
	// synchronization loop only ever downloads, it never publishes.
	raw, err := ftp.Dial(fmt.Sprintf("%s:%d", host, port.Int()))
	require.NoError(t, err)
	require.NoError(t, raw.Login(username, password))
	content := []byte("dns.2014.Y.mtbl contents")
	require.NoError(t, raw.Stor("dns.2014.Y.mtbl", bytes.NewReader(content)))
	require.NoError(t, raw.Quit())

	uri := fmt.Sprintf("ftp://%s:%s@%s:%d/", username, password, host, port.Int())
	u, err := url.Parse(uri)
	require.NoError(t, err)

	src, err := newFTPSource(u)
	require.NoError(t, err)
	defer src.Close()

	r, err := src.Open(ctx, "dns.2014.Y.mtbl")
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFTPSource_Integration_OpenMissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	username := "testuser"
	password := "testpass"
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "stilliard/pure-ftpd",
			Env: map[string]string{
				"FTP_USER_NAME": username,
				"FTP_USER_PASS": password,
				"FTP_USER_HOME": "/home/testuser",
				"PUBLICHOST":    "localhost",
			},
			ExposedPorts: []string{"21/tcp", "30000-30009/tcp"},
			WaitingFor:   wait.ForLog("Starting Pure-FTPd"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	port, err := container.MappedPort(ctx, "21")
	require.NoError(t, err)

	uri := fmt.Sprintf("ftp://%s:%s@%s:%d/", username, password, host, port.Int())
	u, err := url.Parse(uri)
	require.NoError(t, err)

	src, err := newFTPSource(u)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Open(ctx, "dns.not-uploaded.Y.mtbl")
	assert.Error(t, err)
}
