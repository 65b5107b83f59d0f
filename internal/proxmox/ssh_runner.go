package proxmox

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHRunner runs commands on a remote node over SSH with password auth.
// The connection is opened lazily and reused until a session cannot be opened.
type SSHRunner struct {
	Addr     string
	User     string
	Password string
	Timeout  time.Duration
	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey
	HostKeyCallback ssh.HostKeyCallback

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHRunner creates a runner for host:port
func NewSSHRunner(host string, port int, user, password string, timeout time.Duration) *SSHRunner {
	if port == 0 {
		port = 22
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSHRunner{
		Addr:     net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		User:     user,
		Password: password,
		Timeout:  timeout,
	}
}

// Run executes the command remotely and returns stdout
func (r *SSHRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		r.closeLocked()
		return nil, fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	// ssh sessions ignore ctx, so close the session when it is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	output, err := session.Output(shellJoin(name, args...))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return output, nil
}

// Close closes the underlying connection
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *SSHRunner) closeLocked() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	hostKeyCallback := r.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	config := &ssh.ClientConfig{
		User: r.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(r.Password),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.Timeout,
	}

	dialer := &net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", r.Addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, r.Addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	r.client = ssh.NewClient(sshConn, chans, reqs)
	return r.client, nil
}

// shellJoin quotes each argument for a POSIX shell
func shellJoin(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@", r))
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
