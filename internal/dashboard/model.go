// Package dashboard implements the live view behind `supervisorctl
// status --watch`: a bubbletea TUI over the same facade and service
// surfaces the one-shot `status` command uses, polling on a timer
// instead of printing once and exiting.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cowork-run/supervisor/internal/facade"
	"github.com/cowork-run/supervisor/internal/service"
	"github.com/cowork-run/supervisor/internal/vault"
)

var (
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	grayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	focusedBorderStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("4"))
	unfocusedBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	legendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model backing the watch view.
type Model struct {
	facade    *facade.Facade
	installer service.Installer
	mode      service.Mode
	spec      service.WorkerSpec
	vault     *vault.Vault

	sessions    []facade.Session
	svcStatus   service.Status
	diagnostics facade.TransportDiagnostics
	vaultPairs  []string

	cursor    int
	err       error
	width     int
	height    int
	statusMsg string
}

// NewModel constructs a watch-view model. Any of installer/vault may be
// nil if the caller only wants session and transport state; a nil
// facade is accepted so tests can exercise pure view/cursor logic
// without a running worker.
func NewModel(f *facade.Facade, installer service.Installer, mode service.Mode, spec service.WorkerSpec, v *vault.Vault) *Model {
	return &Model{
		facade:    f,
		installer: installer,
		mode:      mode,
		spec:      spec,
		vault:     v,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh, TickCmd())
}

type refreshMsg struct {
	sessions    []facade.Session
	svcStatus   service.Status
	diagnostics facade.TransportDiagnostics
	vaultPairs  []string
}

type errMsg struct{ err error }

type tickMsg struct{}

type deleteResultMsg struct{ err error }

// refresh gathers the same state a one-shot `status` command would
// print, without tearing down the worker between polls.
func (m *Model) refresh() tea.Msg {
	if m.facade == nil {
		return refreshMsg{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions, err := m.facade.ListSessions(ctx)
	if err != nil {
		return errMsg{err: err}
	}
	diag, err := m.facade.GetTransportDiagnostics(ctx)
	if err != nil {
		return errMsg{err: err}
	}

	var svcStatus service.Status
	if m.installer != nil {
		svcStatus, _ = m.installer.Status(m.mode, m.spec)
	}
	var vaultPairs []string
	if m.vault != nil {
		vaultPairs, _ = m.vault.List()
	}

	return refreshMsg{sessions: sessions, svcStatus: svcStatus, diagnostics: diag, vaultPairs: vaultPairs}
}

func (m *Model) deleteSelected() tea.Cmd {
	s := m.SelectedSession()
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := m.facade.DeleteSession(ctx, s.ID)
		return deleteResultMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		m.statusMsg = ""
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.moveCursor(-1)
		case "down", "j":
			m.moveCursor(1)
		case "r":
			return m, m.refresh
		case "x", "d":
			if m.SelectedSession() != nil {
				return m, m.deleteSelected()
			}
		}
	case refreshMsg:
		m.sessions = msg.sessions
		m.svcStatus = msg.svcStatus
		m.diagnostics = msg.diagnostics
		m.vaultPairs = msg.vaultPairs
		m.err = nil
		if m.cursor >= len(m.sessions) && len(m.sessions) > 0 {
			m.cursor = len(m.sessions) - 1
		}
		return m, TickCmd()
	case errMsg:
		m.err = msg.err
	case deleteResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("delete failed: %v", msg.err)
		}
		return m, m.refresh
	case tickMsg:
		return m, m.refresh
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.sessions) && len(m.sessions) > 0 {
		m.cursor = len(m.sessions) - 1
	}
}

// SelectedSession returns the currently highlighted session, or nil.
func (m *Model) SelectedSession() *facade.Session {
	if m.cursor >= 0 && m.cursor < len(m.sessions) {
		return &m.sessions[m.cursor]
	}
	return nil
}

func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'r' to retry, 'q' to quit", m.err)
	}

	totalWidth := m.width
	if totalWidth < 60 {
		totalWidth = 80
	}
	sessWidth := (totalWidth - 5) * 55 / 100
	statusWidth := totalWidth - sessWidth - 5
	if sessWidth < 25 {
		sessWidth = 25
	}
	if statusWidth < 25 {
		statusWidth = 25
	}

	sessPane := focusedBorderStyle.Width(sessWidth).Render(m.buildSessionsContent(sessWidth))
	statusPane := unfocusedBorderStyle.Width(statusWidth).Render(m.buildStatusContent(statusWidth))

	content := lipgloss.JoinHorizontal(lipgloss.Top, sessPane, " ", statusPane)

	var statusLine string
	if m.statusMsg != "" {
		statusLine = redStyle.Render(m.statusMsg) + "\n"
	}

	help := legendStyle.Render("[↑/↓] Move  [x] Delete session  [r] Refresh  [q] Quit")
	return content + "\n" + statusLine + help + "\n"
}

func (m *Model) buildSessionsContent(width int) string {
	var lines []string
	lines = append(lines, headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(m.sessions))))
	lines = append(lines, "")

	if len(m.sessions) == 0 {
		lines = append(lines, grayStyle.Render("  No active sessions"))
		return strings.Join(lines, "\n")
	}

	labelWidth := width - 8
	if labelWidth < 10 {
		labelWidth = 10
	}
	for i, s := range m.sessions {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		title := s.Title
		if title == "" {
			title = s.ID
		}
		line := fmt.Sprintf("%s%-*s %s", cursor, labelWidth, truncate(title, labelWidth), truncate(s.WorkingDirectory, width-labelWidth-4))
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) buildStatusContent(width int) string {
	var lines []string
	lines = append(lines, headerStyle.Render("Service"))

	if m.svcStatus.ServiceID == "" {
		lines = append(lines, grayStyle.Render("  not installed"))
	} else {
		lines = append(lines, fmt.Sprintf("  mode:      %s", m.svcStatus.Mode))
		lines = append(lines, fmt.Sprintf("  manager:   %s", m.svcStatus.Manager))
		lines = append(lines, fmt.Sprintf("  installed: %s", boolIndicator(m.svcStatus.Installed)))
		lines = append(lines, fmt.Sprintf("  running:   %s", boolIndicator(m.svcStatus.Running)))
		lines = append(lines, fmt.Sprintf("  enabled:   %s", boolIndicator(m.svcStatus.Enabled)))
	}

	lines = append(lines, "")
	lines = append(lines, headerStyle.Render("Transport"))
	lines = append(lines, fmt.Sprintf("  mode:            %s", m.diagnostics.Mode))
	lines = append(lines, fmt.Sprintf("  discarded lines: %d", m.diagnostics.DiscardedLines))

	lines = append(lines, "")
	lines = append(lines, headerStyle.Render(fmt.Sprintf("Vault (%d)", len(m.vaultPairs))))
	if len(m.vaultPairs) == 0 {
		lines = append(lines, grayStyle.Render("  no stored credentials"))
	} else {
		for _, p := range m.vaultPairs {
			lines = append(lines, "  "+truncate(p, width-4))
		}
	}

	return strings.Join(lines, "\n")
}

func boolIndicator(b bool) string {
	if b {
		return greenStyle.Render("yes")
	}
	return yellowStyle.Render("no")
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return "…"
	}
	return s[:maxLen-1] + "…"
}

// TickCmd schedules the next poll.
func TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}
