package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig locates the web host. Either Password or KeyFile must be set;
// without KnownHostsFile the host key is not verified.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHostsFile string
	Timeout        time.Duration
}

// SSH streams the file into "cat > RemotePath" on the host.
type SSH struct {
	cfg        SSHConfig
	remotePath string
	log        *slog.Logger
}

func NewSSH(cfg SSHConfig, remotePath string, log *slog.Logger) (*SSH, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("ssh publish: host is required")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return nil, errors.New("ssh publish: user is required")
	}
	if strings.TrimSpace(remotePath) == "" {
		return nil, errors.New("ssh publish: remote path is required")
	}
	if cfg.Password == "" && cfg.KeyFile == "" {
		return nil, errors.New("ssh publish: password or key file is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SSH{cfg: cfg, remotePath: remotePath, log: log}, nil
}

func (s *SSH) Target() string {
	return fmt.Sprintf("%s@%s:%s", s.cfg.User, s.addr(), s.remotePath)
}

func (s *SSH) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.cfg.KeyFile != "" {
		keyBytes, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read SSH key %s: %w", s.cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse SSH key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if s.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(s.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	} else {
		s.log.Warn("ssh host key not verified, set PUBLISH_SSH_KNOWN_HOSTS", "host", s.cfg.Host)
	}

	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.Timeout,
	}, nil
}

func (s *SSH) Publish(ctx context.Context, localPath string) error {
	config, err := s.clientConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return fmt.Errorf("SSH dial %s: %w", s.addr(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr(), config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SSH handshake %s: %w", s.addr(), err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	session.Stdin = f
	if output, err := session.CombinedOutput("cat > " + shellQuote(s.remotePath)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("copy to %s: %w (output: %s)", s.Target(), err, strings.TrimSpace(string(output)))
	}
	return nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
