package proxmox

import "context"

// ClusterAPI defines what the collector needs from a Proxmox cluster.
// It is implemented by both Client (REST API) and ShellClient (pvesh).
type ClusterAPI interface {
	// ListNodes retrieves the node listing. Failures are fatal to a poll.
	ListNodes(ctx context.Context) ([]NodeEntry, error)

	// ListGuests retrieves the QEMU or LXC guests of a node
	ListGuests(ctx context.Context, node string, kind GuestKind) ([]GuestEntry, error)

	// ConfirmConnection checks that the cluster can be reached and logged into
	ConfirmConnection(ctx context.Context) error
}

// Ensure both client types implement the interface
var _ ClusterAPI = (*Client)(nil)
var _ ClusterAPI = (*ShellClient)(nil)
