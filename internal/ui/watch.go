package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/simplelink/internal/linkstate"
	"github.com/muurk/simplelink/internal/transport"
)

// maxTransitions bounds the change log shown under the flags.
const maxTransitions = 8

// Source is what the watch view samples. *wlan.Manager satisfies it.
type Source interface {
	Poll() error
	Status() (transport.ChipStatus, error)
	State() *linkstate.State
}

type tickMsg time.Time

// sampleMsg is the result of one poll of the source.
type sampleMsg struct {
	at     time.Time
	snap   linkstate.Snapshot
	status transport.ChipStatus
	err    error
}

// WatchModel is a Bubble Tea model showing the link state live. Samples are
// taken one at a time, so the source is never polled concurrently.
type WatchModel struct {
	src      Source
	interval time.Duration
	spinner  spinner.Model
	width    int

	sampled     bool
	last        sampleMsg
	samples     int
	transitions []string
	quitting    bool
}

// NewWatchModel creates a watch view polling src every interval.
func NewWatchModel(src Source, interval time.Duration) WatchModel {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return WatchModel{
		src:      src,
		interval: interval,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(PrimaryColor)),
		),
		width: GetTerminalWidth(),
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.sample())
}

func (m WatchModel) sample() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		err := src.Poll()
		status, serr := src.Status()
		if err == nil {
			err = serr
		}
		return sampleMsg{
			at:     time.Now(),
			snap:   src.State().Snapshot(),
			status: status,
			err:    err,
		}
	}
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case sampleMsg:
		if m.sampled {
			m.record(msg)
		}
		m.sampled = true
		m.last = msg
		m.samples++
		interval := m.interval
		return m, tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	case tickMsg:
		return m, m.sample()
	}
	return m, nil
}

// record notes the flag changes between the last sample and s.
func (m *WatchModel) record(s sampleMsg) {
	prev := m.last.snap
	stamp := s.at.Format("15:04:05")
	add := func(text string) {
		m.transitions = append(m.transitions, stamp+"  "+text)
		if len(m.transitions) > maxTransitions {
			m.transitions = m.transitions[len(m.transitions)-maxTransitions:]
		}
	}
	if prev.LinkUp != s.snap.LinkUp {
		if s.snap.LinkUp {
			add("link up")
		} else {
			add("link down")
		}
	}
	if prev.DHCPBound != s.snap.DHCPBound {
		if s.snap.DHCPBound {
			add("DHCP lease acquired")
		} else {
			add("DHCP lease lost")
		}
	}
	if m.last.status != s.status {
		add("chip " + s.status.String())
	}
	if s.snap.PingReports > prev.PingReports {
		add("ping report")
	}
}

// Transitions returns the recorded change log, oldest first.
func (m WatchModel) Transitions() []string {
	return m.transitions
}

// View implements tea.Model
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(RenderHeader("Link Watch", "slctl watch", nil, m.width))
	b.WriteString("\n\n")

	if !m.sampled {
		fmt.Fprintf(&b, "  %s Polling chip...\n", m.spinner.View())
		return b.String()
	}

	for _, d := range StatusDetails(m.last.snap, m.last.status) {
		b.WriteString("  " + ResultKeyStyle.Render(d.Key+":") + " " + ResultValueStyle.Render(d.Value) + "\n")
	}
	if m.last.err != nil {
		b.WriteString("\n  " + ErrorMessageStyle.Render("Error: "+m.last.err.Error()) + "\n")
	}

	if len(m.transitions) > 0 {
		b.WriteString("\n")
		for _, t := range m.transitions {
			b.WriteString("  " + HintStyle.Render(t) + "\n")
		}
	}

	fmt.Fprintf(&b, "\n  %s %s\n", m.spinner.View(),
		HintStyle.Render(fmt.Sprintf("%d samples, every %s. Press q to quit.", m.samples, m.interval)))
	return b.String()
}

// Watch runs the watch view until the user quits.
func Watch(src Source, interval time.Duration, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewWatchModel(src, interval), opts...).Run()
	return err
}
