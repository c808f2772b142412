package remote

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// ClientOptions configure how connections are dialed. Passed in explicitly;
// there is no ambient process-wide state.
type ClientOptions struct {
	// DefaultUser is used when the host string carries no user@ prefix.
	DefaultUser string

	// DialTimeout bounds the TCP connect so one unreachable host cannot
	// hang a whole operation.
	DialTimeout time.Duration
}

const defaultDialTimeout = 10 * time.Second

// Client is an authenticated SSH session to one host, shared by every
// command within a logical operation.
type Client struct {
	host Host
	ssh  *ssh.Client
}

// Dial opens an authenticated connection to host ("user@hostname" or bare
// hostname). Unreachable hosts and failed authentication both surface as
// ConnectionError.
func Dial(ctx context.Context, host string, options ClientOptions) (*Client, error) {
	parsed := ParseHost(host, options.DefaultUser)

	timeout := options.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	auth, err := authMethods()
	if err != nil {
		return nil, ConnectionError{Host: parsed.String(), Err: err}
	}

	addr := net.JoinHostPort(parsed.Hostname, "22")
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ConnectionError{Host: parsed.String(), Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            parsed.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return nil, ConnectionError{Host: parsed.String(), Err: err}
	}

	return &Client{host: parsed, ssh: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// Host returns the parsed connection target.
func (c *Client) Host() Host {
	return c.host
}

// Run executes command on the remote host and returns stdout, stderr, and
// the remote exit code. The exit code is the command's own business; only
// transport failures are returned as err.
func (c *Client) Run(command string) (string, string, int, error) {
	session, err := c.ssh.NewSession()
	if err != nil {
		return "", "", 0, ConnectionError{Host: c.host.String(), Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), 0, ConnectionError{Host: c.host.String(), Err: err}
	}
	return stdout.String(), stderr.String(), 0, nil
}

func (c *Client) Close() error {
	return c.ssh.Close()
}

// authMethods collects SSH auth from the running agent and from the standard
// identity files in ~/.ssh.
func authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		var signers []ssh.Signer
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			contents, err := os.ReadFile(filepath.Join(home, ".ssh", name))
			if err != nil {
				continue
			}
			signer, err := ssh.ParsePrivateKey(contents)
			if err != nil {
				continue
			}
			signers = append(signers, signer)
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no SSH auth available: no agent and no usable keys in ~/.ssh")
	}
	return methods, nil
}
