// Package virt holds the host-to-guest association types handed to the
// inventory consumer.
package virt

// Fact keys attached to every hypervisor record
const (
	HypervisorTypeFact = "hypervisor.type"
	SystemUUIDFact     = "dmi.system.uuid"
)

// VirtType is the guest type reported for every Proxmox guest
const VirtType = "proxmox"

// Technology identifies which hypervisor technology runs a guest
type Technology string

const (
	TechnologyQEMU Technology = "qemu"
	TechnologyLXC  Technology = "lxc"
)

// GuestState is the reported state of a guest
type GuestState string

// StateRunning is reported for every listed guest
const StateRunning GuestState = "running"

// Guest represents a QEMU virtual machine or LXC container
type Guest struct {
	ID         string     `json:"guestId" yaml:"guestId"`
	Type       string     `json:"virtWhoType" yaml:"virtWhoType"`
	Technology Technology `json:"technology" yaml:"technology"`
	State      GuestState `json:"state" yaml:"state"`
}

// NewGuest creates a running Proxmox guest
func NewGuest(id string, tech Technology) Guest {
	return Guest{
		ID:         id,
		Type:       VirtType,
		Technology: tech,
		State:      StateRunning,
	}
}

// Hypervisor represents one cluster node and the guests observed on it
type Hypervisor struct {
	HypervisorID string            `json:"hypervisorId" yaml:"hypervisorId"`
	Name         string            `json:"name" yaml:"name"`
	Guests       []Guest           `json:"guestIds" yaml:"guestIds"`
	Facts        map[string]string `json:"facts" yaml:"facts"`
}

// Mapping is the association report produced by a single poll
type Mapping struct {
	Hypervisors []Hypervisor `json:"hypervisors" yaml:"hypervisors"`
}

// GuestCount returns the number of guests across all hypervisors
func (m *Mapping) GuestCount() int {
	total := 0
	for _, h := range m.Hypervisors {
		total += len(h.Guests)
	}
	return total
}

// CountByTechnology returns guest counts per technology
func (h *Hypervisor) CountByTechnology() map[Technology]int {
	counts := make(map[Technology]int)
	for _, g := range h.Guests {
		counts[g.Technology]++
	}
	return counts
}

// FindHypervisor returns the record for the given hypervisor ID, or nil
func (m *Mapping) FindHypervisor(id string) *Hypervisor {
	for i := range m.Hypervisors {
		if m.Hypervisors[i].HypervisorID == id {
			return &m.Hypervisors[i]
		}
	}
	return nil
}
