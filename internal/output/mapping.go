package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/yourusername/pvemap/internal/virt"
)

type MappingOptions struct {
	Mode Mode
	// Wide lists every guest id instead of per-technology counts
	Wide bool
}

func RenderMapping(w io.Writer, mapping *virt.Mapping, opts MappingOptions) error {
	switch opts.Mode {
	case ModeJSON:
		return EmitJSON(w, mapping)
	case ModeYAML:
		return EmitYAML(w, mapping)
	default:
		return renderMappingTable(w, mapping, opts)
	}
}

func mappingRows(mapping *virt.Mapping, wide bool) [][]string {
	columns := []string{"Hypervisor", "System UUID", "QEMU", "LXC"}
	if wide {
		columns = append(columns, "Guests")
	}

	rows := [][]string{columns}
	for _, h := range mapping.Hypervisors {
		counts := h.CountByTechnology()
		row := []string{
			h.HypervisorID,
			valueOrDash(h.Facts[virt.SystemUUIDFact]),
			fmt.Sprintf("%d", counts[virt.TechnologyQEMU]),
			fmt.Sprintf("%d", counts[virt.TechnologyLXC]),
		}
		if wide {
			ids := make([]string, 0, len(h.Guests))
			for _, g := range h.Guests {
				ids = append(ids, g.ID)
			}
			row = append(row, valueOrDash(strings.Join(ids, ",")))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderMappingTable(w io.Writer, mapping *virt.Mapping, opts MappingOptions) error {
	return RenderTable(w, mappingRows(mapping, opts.Wide))
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
