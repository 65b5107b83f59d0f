package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yourusername/pvemap/internal/adapter"
)

// Poller runs one poll of every configured cluster
type Poller func(ctx context.Context) []adapter.Result

// Model is the live topology view
type Model struct {
	ctx      context.Context
	poll     Poller
	interval time.Duration
	version  string

	spinner  spinner.Model
	polling  bool
	gen      int
	results  []adapter.Result
	lastPoll time.Time
	polls    int

	// UI state
	selected   int
	showGuests bool
	showHelp   bool
	width      int
	height     int
}

// NewModel creates the watch model. Polls run on interval until quit.
func NewModel(ctx context.Context, poll Poller, interval time.Duration, version string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		poll:     poll,
		interval: interval,
		version:  version,
		spinner:  s,
		polling:  true,
		width:    80,
		height:   24,
	}
}

// Init starts the spinner and the first poll
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startPoll())
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pollCompleteMsg:
		m.polling = false
		m.results = msg.results
		m.lastPoll = msg.at
		m.polls++
		if m.selected >= len(m.results) {
			m.selected = 0
		}
		m.gen++
		return m, m.scheduleNext()

	case tickMsg:
		// Ticks from before a manual refresh are stale
		if msg.gen != m.gen || m.polling {
			return m, nil
		}
		cmd := m.startPoll()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	case "r":
		if !m.polling {
			cmd := m.startPoll()
			return m, cmd
		}
	case "g":
		m.showGuests = !m.showGuests
	case "tab", "right", "l":
		if len(m.results) > 0 {
			m.selected = (m.selected + 1) % len(m.results)
		}
	case "shift+tab", "left", "h":
		if len(m.results) > 0 {
			m.selected = (m.selected - 1 + len(m.results)) % len(m.results)
		}
	}
	return m, nil
}

// startPoll creates the poll command
func (m *Model) startPoll() tea.Cmd {
	m.polling = true
	ctx, poll := m.ctx, m.poll
	return func() tea.Msg {
		return pollCompleteMsg{results: poll(ctx), at: time.Now()}
	}
}

func (m Model) scheduleNext() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

// View renders the current view
func (m Model) View() string {
	if m.showHelp {
		return renderHelp()
	}
	return renderDashboard(m)
}

// Messages
type pollCompleteMsg struct {
	results []adapter.Result
	at      time.Time
}

type tickMsg struct {
	gen int
}
