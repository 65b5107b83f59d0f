package proxmox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Default connection settings
const (
	DefaultPort  = 8006
	DefaultRealm = "pam"
)

// GuestKind selects the per-node guest listing endpoint
type GuestKind string

const (
	KindQEMU GuestKind = "qemu"
	KindLXC  GuestKind = "lxc"
)

// NodeEntry is one element of the /nodes listing
type NodeEntry struct {
	Node   string `json:"node"`
	NodeID FlexID `json:"nodeid,omitempty"`
	Status string `json:"status,omitempty"`
}

// SystemUUID returns the node id, or the node name when no id was reported
func (n NodeEntry) SystemUUID() string {
	if n.NodeID != "" {
		return string(n.NodeID)
	}
	return n.Node
}

// GuestEntry is one element of a /nodes/{node}/qemu or /lxc listing
type GuestEntry struct {
	VMID   FlexID `json:"vmid"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// APIResponse is the envelope of every Proxmox API answer
type APIResponse struct {
	Data json.RawMessage `json:"data"`
}

// ticketData is the payload of POST /access/ticket
type ticketData struct {
	Ticket              string `json:"ticket"`
	CSRFPreventionToken string `json:"CSRFPreventionToken"`
}

// FlexID is an identifier that the API may send as a number or a string.
// It always holds the decimal string form.
type FlexID string

// UnmarshalJSON accepts JSON numbers, strings and null
func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("invalid id %s: %w", b, err)
		}
		*f = FlexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	// 101.0 and 1.01e2 both mean vmid 101
	if i, err := n.Int64(); err == nil {
		*f = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	fl, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*f = FlexID(strconv.FormatFloat(fl, 'f', -1, 64))
	return nil
}

// String returns the id as a string
func (f FlexID) String() string {
	return string(f)
}

// decodeData unmarshals the data field of an API envelope into v
func decodeData(body []byte, v interface{}) error {
	var result APIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 {
		return fmt.Errorf("response has no data field")
	}
	if err := json.Unmarshal(result.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}
