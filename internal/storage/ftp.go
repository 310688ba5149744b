package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

type ftpSource struct {
	client     *ftp.ServerConn
	remotePath string
}

func newFTPSource(u *url.URL) (*ftpSource, error) {
	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Host
	if !strings.Contains(host, ":") {
		host = host + ":21"
	}

	c, err := ftp.Dial(host, ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	if err := c.Login(user, pass); err != nil {
		c.Quit()
		return nil, err
	}

	return &ftpSource{client: c, remotePath: u.Path}, nil
}

func (s *ftpSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.client.Retr(path.Join(s.remotePath, name))
}

func (s *ftpSource) Close() error {
	return s.client.Quit()
}
