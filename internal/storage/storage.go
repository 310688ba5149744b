// Package storage implements the non-HTTP(S) fileset_uri schemes called
// out in SPEC_FULL.md §4.13: sftp, ftp, and s3. Unlike the teacher's
// storage package, which models a backup destination callers write to,
// this one models a fileset *source* callers read from — Open is the
// only operation the synchronization loop needs, since pruning and
// manifest writes always happen against the local destination directory.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/farsightsec/fileset-sync/internal/apperrors"
)

// Source reads individual named files out of a remote fileset whose
// fileset_uri uses a scheme other than http/https.
type Source interface {
	// Open returns a reader for name, resolved relative to the source's
	// configured remote path.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Close() error
}

// FromURI dispatches on uri's scheme to build a Source. http(s) schemes
// are not handled here: the syncer talks to those directly through
// internal/fetch, since that path also carries the Digest/Content-Length/
// X-API-Key protocol this package has no use for.
func FromURI(uri string) (Source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("failed to parse fileset_uri %q", uri), "check the fileset_uri for typos")
	}

	switch strings.ToLower(u.Scheme) {
	case "sftp", "ssh":
		return newSFTPSource(u)
	case "ftp":
		return newFTPSource(u)
	case "s3", "minio":
		return newS3Source(u)
	default:
		return nil, apperrors.New(apperrors.TypeConfig, fmt.Sprintf("unsupported fileset_uri scheme %q", u.Scheme), "use http, https, sftp, ftp, or s3")
	}
}
