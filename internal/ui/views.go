package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yourusername/pvemap/internal/adapter"
	"github.com/yourusername/pvemap/internal/virt"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	versionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func renderDashboard(m Model) string {
	var sb strings.Builder

	width := m.width
	if width < 40 {
		width = 40
	}

	sb.WriteString(titleStyle.Render("pvemap") + " " + versionStyle.Render(m.version) + "\n")
	sb.WriteString(borderStyle.Render(strings.Repeat("━", width)) + "\n")
	sb.WriteString(renderStatus(m) + "\n\n")

	if len(m.results) == 0 {
		sb.WriteString(dimStyle.Render("Waiting for the first poll...") + "\n")
	}

	for i, r := range m.results {
		sb.WriteString(renderCluster(r, i == m.selected, m.showGuests, width))
		sb.WriteString("\n")
	}

	sb.WriteString(borderStyle.Render(strings.Repeat("─", width)) + "\n")
	sb.WriteString(helpStyle.Render("r: refresh  g: guests  tab: next cluster  ?: help  q: quit"))
	return sb.String()
}

func renderStatus(m Model) string {
	var parts []string
	if m.polling {
		parts = append(parts, m.spinner.View()+" Polling...")
	}
	if !m.lastPoll.IsZero() {
		parts = append(parts, labelStyle.Render("Last poll: ")+valueStyle.Render(m.lastPoll.Format("15:04:05")))
	}
	parts = append(parts, labelStyle.Render("Polls: ")+valueStyle.Render(fmt.Sprintf("%d", m.polls)))
	parts = append(parts, labelStyle.Render("Every: ")+valueStyle.Render(m.interval.String()))
	return strings.Join(parts, "  ")
}

func renderCluster(r adapter.Result, selected, showGuests bool, width int) string {
	var sb strings.Builder

	name := " " + r.Cluster + " "
	if selected {
		sb.WriteString(selectedStyle.Render(name))
	} else {
		sb.WriteString(headerStyle.Render(name))
	}

	if r.Err != nil {
		sb.WriteString("\n  " + errorStyle.Render("✗ "+r.Err.Error()) + "\n")
		return sb.String()
	}
	if r.Report == nil {
		sb.WriteString("\n")
		return sb.String()
	}

	mapping := r.Report.Mapping
	sb.WriteString(" " + labelStyle.Render(fmt.Sprintf("%d nodes, %d guests", len(mapping.Hypervisors), mapping.GuestCount())) + "\n")

	sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-16s %-38s %5s %5s", "NODE", "SYSTEM ID", "QEMU", "LXC")) + "\n")
	for _, h := range mapping.Hypervisors {
		counts := h.CountByTechnology()
		sb.WriteString(fmt.Sprintf("  %-16s %-38s %5d %5d\n",
			h.Name, h.Facts[virt.SystemUUIDFact], counts[virt.TechnologyQEMU], counts[virt.TechnologyLXC]))

		if showGuests && len(h.Guests) > 0 {
			sb.WriteString(dimStyle.Render(wrapGuests(h.Guests, width-4)) + "\n")
		}
	}
	return sb.String()
}

// wrapGuests lists guest IDs indented under their node
func wrapGuests(guests []virt.Guest, width int) string {
	var lines []string
	line := "    "
	for i, g := range guests {
		item := g.ID
		if i < len(guests)-1 {
			item += ","
		}
		if len(line)+len(item)+1 > width && strings.TrimSpace(line) != "" {
			lines = append(lines, line)
			line = "    "
		}
		if strings.TrimSpace(line) != "" {
			line += " "
		}
		line += item
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func renderHelp() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("pvemap watch") + "\n\n")

	keys := []struct{ key, desc string }{
		{"r", "Poll all clusters now"},
		{"g", "Show or hide guest IDs"},
		{"tab / l / →", "Select next cluster"},
		{"shift+tab / h / ←", "Select previous cluster"},
		{"?", "Toggle this help"},
		{"q / ctrl+c", "Quit"},
	}
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s %s\n", valueStyle.Render(fmt.Sprintf("%-18s", k.key)), k.desc))
	}

	sb.WriteString("\n" + helpStyle.Render("Press ? to return"))
	return sb.String()
}
