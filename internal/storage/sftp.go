package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

type sftpSource struct {
	client     *ssh.Client
	sftpClient *sftp.Client
	remotePath string
}

func newSFTPSource(u *url.URL) (*sftpSource, error) {
	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Host
	if !strings.Contains(host, ":") {
		host = host + ":22"
	}

	config := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	if pass != "" {
		config.Auth = append(config.Auth, ssh.Password(pass))
	} else if authSock := os.Getenv("SSH_AUTH_SOCK"); authSock != "" {
		if conn, err := net.Dial("unix", authSock); err == nil {
			ag := agent.NewClient(conn)
			config.Auth = append(config.Auth, ssh.PublicKeysCallback(ag.Signers))
		}
	}

	if len(config.Auth) == 0 {
		return nil, fmt.Errorf("storage: no SSH authentication method available for %s (set a password in the URI or load a key into ssh-agent)", host)
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, fmt.Errorf("storage: sftp dial %s: %w", host, err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: sftp handshake with %s: %w", host, err)
	}

	return &sftpSource{client: client, sftpClient: sftpClient, remotePath: u.Path}, nil
}

func (s *sftpSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.sftpClient.Open(path.Join(s.remotePath, name))
}

func (s *sftpSource) Close() error {
	s.sftpClient.Close()
	return s.client.Close()
}
