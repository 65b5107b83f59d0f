package proxmox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner executes a command and returns its standard output
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ShellClient represents a Proxmox client using pvesh, either on the local
// host or on a remote node through a CommandRunner such as SSHRunner.
// pvesh talks to the local API as root, so there is no ticket to manage.
type ShellClient struct {
	runner CommandRunner
}

// NewShellClient creates a shell client. A nil runner runs pvesh locally.
func NewShellClient(runner CommandRunner) *ShellClient {
	if runner == nil {
		runner = LocalRunner{}
	}
	return &ShellClient{runner: runner}
}

// pveshAvailable checks if pvesh is on the PATH
func pveshAvailable() bool {
	_, err := exec.LookPath("pvesh")
	return err == nil
}

// IsProxmoxHost checks if we're running on a Proxmox VE host
func IsProxmoxHost() bool {
	// /etc/pve is the cluster filesystem mount
	if fi, err := os.Stat("/etc/pve"); err != nil || !fi.IsDir() {
		return false
	}
	return pveshAvailable()
}

// pvesh runs `pvesh get <path> --output-format json`
func (c *ShellClient) pvesh(ctx context.Context, path string) ([]byte, error) {
	output, err := c.runner.Run(ctx, "pvesh", "get", path, "--output-format", "json")
	if err != nil {
		return nil, fmt.Errorf("pvesh get %s failed: %w", path, err)
	}
	return output, nil
}

// ListNodes retrieves the node listing using pvesh
func (c *ShellClient) ListNodes(ctx context.Context) ([]NodeEntry, error) {
	const path = "/nodes"

	output, err := c.pvesh(ctx, path)
	if err != nil {
		return nil, &CollectionError{Path: path, Err: err}
	}

	var nodes []NodeEntry
	if err := json.Unmarshal(output, &nodes); err != nil {
		return nil, &CollectionError{Path: path, Err: fmt.Errorf("failed to unmarshal nodes: %w", err)}
	}
	return nodes, nil
}

// ListGuests retrieves the QEMU or LXC listing of one node using pvesh
func (c *ShellClient) ListGuests(ctx context.Context, node string, kind GuestKind) ([]GuestEntry, error) {
	path := fmt.Sprintf("/nodes/%s/%s", node, kind)

	output, err := c.pvesh(ctx, path)
	if err != nil {
		return nil, err
	}

	var guests []GuestEntry
	if err := json.Unmarshal(output, &guests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return guests, nil
}

// ConfirmConnection checks that pvesh answers
func (c *ShellClient) ConfirmConnection(ctx context.Context) error {
	_, err := c.pvesh(ctx, "/version")
	return err
}

// LocalRunner runs commands on this host
type LocalRunner struct{}

// Run executes the command and returns stdout. Stderr is folded into the error.
func (LocalRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}
