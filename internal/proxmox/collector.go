package proxmox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yourusername/pvemap/internal/virt"
)

// Collector walks a cluster and assembles its host-to-guest mapping
type Collector struct {
	api     ClusterAPI
	name    string
	metrics *Metrics
}

// NewCollector creates a collector over api. name labels logs and metrics.
func NewCollector(api ClusterAPI, name string, metrics *Metrics) *Collector {
	return &Collector{
		api:     api,
		name:    name,
		metrics: metrics,
	}
}

// guestListResult is the outcome of one per-node guest listing. An
// unavailable result contributes no guests.
type guestListResult struct {
	kind   GuestKind
	guests []virt.Guest
	err    error
}

func (r guestListResult) available() bool {
	return r.err == nil
}

// Collect performs one poll: all nodes, then per node the QEMU and LXC
// listings. A failed node listing or authentication aborts the poll; any
// other failed guest listing leaves that node's sublist empty.
func (c *Collector) Collect(ctx context.Context) (mapping *virt.Mapping, err error) {
	started := time.Now()
	defer func() {
		hypervisors, guests := 0, 0
		if mapping != nil {
			hypervisors, guests = len(mapping.Hypervisors), mapping.GuestCount()
		}
		c.metrics.observePoll(c.name, started, hypervisors, guests, err)
	}()

	nodes, err := c.api.ListNodes(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, asPollError(err)
	}

	mapping = &virt.Mapping{
		Hypervisors: make([]virt.Hypervisor, 0, len(nodes)),
	}

	for _, node := range nodes {
		guests := []virt.Guest{}
		for _, kind := range []GuestKind{KindQEMU, KindLXC} {
			result := c.fetchGuests(ctx, node.Node, kind)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var authErr *AuthenticationError
			if errors.As(result.err, &authErr) {
				return nil, result.err
			}
			if !result.available() {
				log.Printf("%s: %s listing of node %s unavailable: %v", c.name, kind, node.Node, result.err)
				c.metrics.observeFetchFailure(c.name, node.Node, kind)
				continue
			}
			guests = append(guests, result.guests...)
		}

		mapping.Hypervisors = append(mapping.Hypervisors, newHypervisor(node, guests))
	}

	log.Printf("%s: collected %d hypervisors and %d guests", c.name, len(mapping.Hypervisors), mapping.GuestCount())
	return mapping, nil
}

// ConfirmConnection checks the cluster's credentials
func (c *Collector) ConfirmConnection(ctx context.Context) error {
	return c.api.ConfirmConnection(ctx)
}

func (c *Collector) fetchGuests(ctx context.Context, node string, kind GuestKind) guestListResult {
	entries, err := c.api.ListGuests(ctx, node, kind)
	if err != nil {
		return guestListResult{kind: kind, err: err}
	}

	tech := virt.TechnologyQEMU
	if kind == KindLXC {
		tech = virt.TechnologyLXC
	}

	guests := make([]virt.Guest, 0, len(entries))
	for _, e := range entries {
		guests = append(guests, virt.NewGuest(e.VMID.String(), tech))
	}
	return guestListResult{kind: kind, guests: guests}
}

func newHypervisor(node NodeEntry, guests []virt.Guest) virt.Hypervisor {
	return virt.Hypervisor{
		HypervisorID: node.Node,
		Name:         node.Node,
		Guests:       guests,
		Facts: map[string]string{
			virt.HypervisorTypeFact: virt.VirtType,
			virt.SystemUUIDFact:     node.SystemUUID(),
		},
	}
}

// asPollError keeps authentication and collection errors as they are and
// turns anything else from the node listing into a CollectionError
func asPollError(err error) error {
	var authErr *AuthenticationError
	var collErr *CollectionError
	if errors.As(err, &authErr) || errors.As(err, &collErr) {
		return err
	}
	return &CollectionError{Path: "/nodes", Err: err}
}
