package proxmox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"testing"

	"github.com/yourusername/pvemap/internal/virt"
)

// stubAPI is an in-memory ClusterAPI
type stubAPI struct {
	nodes     []NodeEntry
	nodesErr  error
	guests    map[string][]GuestEntry
	guestErrs map[string]error
	calls     []string
}

func (s *stubAPI) ListNodes(ctx context.Context) ([]NodeEntry, error) {
	s.calls = append(s.calls, "nodes")
	return s.nodes, s.nodesErr
}

func (s *stubAPI) ListGuests(ctx context.Context, node string, kind GuestKind) ([]GuestEntry, error) {
	key := node + "/" + string(kind)
	s.calls = append(s.calls, key)
	if err := s.guestErrs[key]; err != nil {
		return nil, err
	}
	return s.guests[key], nil
}

func (s *stubAPI) ConfirmConnection(ctx context.Context) error {
	return nil
}

func guestIDs(h virt.Hypervisor) []string {
	ids := make([]string, 0, len(h.Guests))
	for _, g := range h.Guests {
		ids = append(ids, g.ID)
	}
	return ids
}

func TestCollectTwoNodeCluster(t *testing.T) {
	f := newFakeCluster()
	f.nodesBody = `{"data":[{"node":"n1"},{"node":"n2"}]}`
	f.guestBodies["/nodes/n1/qemu"] = `{"data":[{"vmid":"101","name":"vm1","status":"running"}]}`
	f.guestBodies["/nodes/n2/lxc"] = `{"data":[{"vmid":"201","name":"ct1","status":"running"}]}`
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(mapping.Hypervisors) != 2 {
		t.Fatalf("hypervisors=%d, want 2", len(mapping.Hypervisors))
	}
	n1, n2 := mapping.Hypervisors[0], mapping.Hypervisors[1]
	if n1.HypervisorID != "n1" || n2.HypervisorID != "n2" {
		t.Fatalf("unexpected order: %s, %s", n1.HypervisorID, n2.HypervisorID)
	}
	if got := guestIDs(n1); !reflect.DeepEqual(got, []string{"101"}) {
		t.Fatalf("n1 guests=%v", got)
	}
	if got := guestIDs(n2); !reflect.DeepEqual(got, []string{"201"}) {
		t.Fatalf("n2 guests=%v", got)
	}
	if n1.Guests[0].Technology != virt.TechnologyQEMU || n2.Guests[0].Technology != virt.TechnologyLXC {
		t.Fatalf("unexpected technologies: %+v %+v", n1.Guests[0], n2.Guests[0])
	}
	if mapping.GuestCount() != 2 {
		t.Fatalf("guest count=%d, want 2", mapping.GuestCount())
	}

	if f.authCount() != 1 {
		t.Fatalf("auth calls=%d, want 1", f.authCount())
	}
	for i, cookie := range f.cookies {
		if cookie != "PVEAuthCookie=PVE:user@pam:TICKET" || f.csrf[i] != "CSRF123" {
			t.Fatalf("request %d sent cookie=%q csrf=%q", i, cookie, f.csrf[i])
		}
	}
}

func TestCollectNumericVMIDsBecomeStrings(t *testing.T) {
	f := newFakeCluster()
	f.nodesBody = `{"data":[{"node":"pve1","nodeid":3}]}`
	f.guestBodies["/nodes/pve1/qemu"] = guestListBody(100, 105)
	f.guestBodies["/nodes/pve1/lxc"] = guestListBody(200)
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	h := mapping.Hypervisors[0]
	if got := guestIDs(h); !reflect.DeepEqual(got, []string{"100", "105", "200"}) {
		t.Fatalf("guests=%v, want QEMU first then LXC", got)
	}
	if got := h.Facts[virt.SystemUUIDFact]; got != "3" {
		t.Fatalf("system uuid=%q, want 3", got)
	}
	if got := h.Facts[virt.HypervisorTypeFact]; got != "proxmox" {
		t.Fatalf("hypervisor type=%q", got)
	}
}

func TestCollectNodeListFailureIsFatal(t *testing.T) {
	f := newFakeCluster()
	f.nodesStatus = http.StatusInternalServerError
	f.nodesBody = "cluster not ready"
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if mapping != nil {
		t.Fatalf("no mapping expected, got %+v", mapping)
	}
	var collErr *CollectionError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected *CollectionError, got %T: %v", err, err)
	}
	if collErr.StatusCode != http.StatusInternalServerError || collErr.Body != "cluster not ready" {
		t.Fatalf("unexpected error fields: %+v", collErr)
	}
	if f.requestCount("GET /nodes/n1/qemu") != 0 {
		t.Fatalf("no per-node fetch expected")
	}
}

func TestCollectAuthenticationFailureAbortsPoll(t *testing.T) {
	f := newFakeCluster()
	f.authStatus = http.StatusUnauthorized
	f.authBody = "authentication failure"
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if mapping != nil {
		t.Fatalf("no mapping expected")
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthenticationError, got %T: %v", err, err)
	}
	if f.requestCount("GET /nodes") != 0 {
		t.Fatalf("node list must not be fetched without a session")
	}
}

func TestCollectRejectedTicketAbortsPoll(t *testing.T) {
	f := newFakeCluster()
	f.nodesBody = `{"data":[{"node":"n1"},{"node":"n2"},{"node":"n3"}]}`
	f.guestStatuses["/nodes/n1/qemu"] = http.StatusUnauthorized
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if mapping != nil {
		t.Fatalf("no mapping expected, got %+v", mapping)
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthenticationError, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", authErr.StatusCode)
	}
	if f.authCount() != 1 {
		t.Fatalf("auth calls=%d, want 1: no login retry inside a poll", f.authCount())
	}
	if f.requestCount("GET /nodes/n1/lxc") != 0 || f.requestCount("GET /nodes/n2/qemu") != 0 {
		t.Fatalf("poll continued after the ticket was rejected")
	}
	if _, ok := client.Session().Session(); ok {
		t.Fatalf("rejected session must be dropped")
	}
}

func TestCollectAuthenticationErrorFromGuestListingIsFatal(t *testing.T) {
	api := &stubAPI{
		nodes:     []NodeEntry{{Node: "a"}, {Node: "b"}},
		guestErrs: map[string]error{"a/lxc": &AuthenticationError{StatusCode: 401, Body: "denied"}},
	}

	mapping, err := NewCollector(api, "test", nil).Collect(context.Background())
	if mapping != nil {
		t.Fatalf("no mapping expected")
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthenticationError, got %T: %v", err, err)
	}
	want := []string{"nodes", "a/qemu", "a/lxc"}
	if !reflect.DeepEqual(api.calls, want) {
		t.Fatalf("calls=%v, want %v", api.calls, want)
	}
}

func TestCollectPerNodeFailureYieldsEmptySublist(t *testing.T) {
	f := newFakeCluster()
	f.nodesBody = `{"data":[{"node":"n1"},{"node":"n2"}]}`
	f.guestStatuses["/nodes/n1/qemu"] = http.StatusInternalServerError
	f.guestBodies["/nodes/n1/lxc"] = guestListBody(110)
	f.guestStatuses["/nodes/n2/qemu"] = http.StatusServiceUnavailable
	f.guestStatuses["/nodes/n2/lxc"] = http.StatusServiceUnavailable
	client := newTestClient(t, f)

	mapping, err := NewCollector(client, "test", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(mapping.Hypervisors) != 2 {
		t.Fatalf("hypervisors=%d, want 2", len(mapping.Hypervisors))
	}
	if got := guestIDs(mapping.Hypervisors[0]); !reflect.DeepEqual(got, []string{"110"}) {
		t.Fatalf("n1 guests=%v, want the LXC guest only", got)
	}
	if got := mapping.Hypervisors[1].Guests; got == nil || len(got) != 0 {
		t.Fatalf("n2 guests=%v, want empty non-nil list", got)
	}
	if f.requestCount("GET /nodes/n1/lxc") != 1 {
		t.Fatalf("LXC fetch must run after a QEMU failure")
	}
}

func TestCollectNodeWithoutGuests(t *testing.T) {
	api := &stubAPI{nodes: []NodeEntry{{Node: "empty"}}}

	mapping, err := NewCollector(api, "test", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(mapping.Hypervisors) != 1 {
		t.Fatalf("hypervisors=%d, want 1", len(mapping.Hypervisors))
	}
	h := mapping.Hypervisors[0]
	if len(h.Guests) != 0 {
		t.Fatalf("guests=%v, want none", h.Guests)
	}
	if h.Name != "empty" || h.Facts[virt.SystemUUIDFact] != "empty" {
		t.Fatalf("unexpected record: %+v", h)
	}
}

func TestCollectCallOrder(t *testing.T) {
	api := &stubAPI{nodes: []NodeEntry{{Node: "a"}, {Node: "b"}}}

	if _, err := NewCollector(api, "test", nil).Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{"nodes", "a/qemu", "a/lxc", "b/qemu", "b/lxc"}
	if !reflect.DeepEqual(api.calls, want) {
		t.Fatalf("calls=%v, want %v", api.calls, want)
	}
}

func TestCollectDoesNotDeduplicateAcrossNodes(t *testing.T) {
	api := &stubAPI{
		nodes: []NodeEntry{{Node: "a"}, {Node: "b"}},
		guests: map[string][]GuestEntry{
			"a/qemu": {{VMID: "100"}},
			"b/qemu": {{VMID: "100"}},
		},
	}

	mapping, err := NewCollector(api, "test", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if mapping.GuestCount() != 2 {
		t.Fatalf("guest count=%d, want 2", mapping.GuestCount())
	}
}

func TestCollectWrapsUntypedNodeListErrors(t *testing.T) {
	api := &stubAPI{nodesErr: fmt.Errorf("connection reset")}

	_, err := NewCollector(api, "test", nil).Collect(context.Background())
	var collErr *CollectionError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected *CollectionError, got %T: %v", err, err)
	}
}

func TestCollectDoesNotReusePreviousPoll(t *testing.T) {
	api := &stubAPI{
		nodes:  []NodeEntry{{Node: "a"}},
		guests: map[string][]GuestEntry{"a/qemu": {{VMID: "100"}}},
	}
	collector := NewCollector(api, "test", nil)
	ctx := context.Background()

	first, err := collector.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	api.guests = map[string][]GuestEntry{}
	api.guestErrs = map[string]error{"a/lxc": fmt.Errorf("timeout")}

	second, err := collector.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(second.Hypervisors[0].Guests) != 0 {
		t.Fatalf("second poll reused guests: %v", second.Hypervisors[0].Guests)
	}
	if len(first.Hypervisors[0].Guests) != 1 {
		t.Fatalf("first mapping was mutated: %v", first.Hypervisors[0].Guests)
	}
}

func TestCollectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &cancellingAPI{stubAPI: stubAPI{nodes: []NodeEntry{{Node: "a"}, {Node: "b"}}}, cancel: cancel}

	mapping, err := NewCollector(api, "test", nil).Collect(ctx)
	if mapping != nil {
		t.Fatalf("no mapping expected")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// cancellingAPI cancels the poll during the first guest listing
type cancellingAPI struct {
	stubAPI
	cancel context.CancelFunc
}

func (c *cancellingAPI) ListGuests(ctx context.Context, node string, kind GuestKind) ([]GuestEntry, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestCollectCancelledDuringNodeListing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &stubAPI{nodesErr: fmt.Errorf("request failed: %w", context.Canceled)}

	_, err := NewCollector(api, "test", nil).Collect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var collErr *CollectionError
	if errors.As(err, &collErr) {
		t.Fatalf("cancellation must not be reported as a collection failure")
	}
}
