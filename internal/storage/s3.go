package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type s3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

func newS3Source(u *url.URL) (*s3Source, error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("storage: s3 fileset_uri %q is missing a bucket name in its path", u.String())
	}
	bucket := parts[0]
	prefix := ""
	if len(parts) > 1 {
		prefix = parts[1]
	}

	accessKey := u.User.Username()
	secretKey, _ := u.User.Password()
	useSSL := u.Query().Get("ssl") != "false"

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       u.Query().Get("region"),
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: building s3 client for %s: %w", u.Host, err)
	}

	return &s3Source{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *s3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := name
	if s.prefix != "" && name != "" {
		key = s.prefix + "/" + name
	} else if s.prefix != "" {
		key = s.prefix
	}
	return s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

func (s *s3Source) Close() error {
	return nil
}
