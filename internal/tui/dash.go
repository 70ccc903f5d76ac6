// Package tui renders the terminal dashboard: a live view of every
// supervised worker, fed by the control API.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/openwork/workshell/internal/supervisor"
)

const refreshInterval = 1 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// StatusClient fetches the supervisor status from the control API.
type StatusClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *StatusClient) Fetch(ctx context.Context) (supervisor.Status, error) {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/status", nil)
	if err != nil {
		return supervisor.Status{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := client.Do(req)
	if err != nil {
		return supervisor.Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return supervisor.Status{}, fmt.Errorf("control API returned %s", resp.Status)
	}
	var status supervisor.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return supervisor.Status{}, fmt.Errorf("parse status: %w", err)
	}
	return status, nil
}

type statusMsg supervisor.Status

type statusErrMsg struct{ err error }

type tickMsg time.Time

// DashModel is the dashboard bubbletea model.
type DashModel struct {
	client  *StatusClient
	status  supervisor.Status
	fetched bool
	lastErr error
	width   int
}

func NewDashModel(client *StatusClient) DashModel {
	return DashModel{client: client}
}

func (m DashModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), tickCmd())
}

func (m DashModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status, err := m.client.Fetch(ctx)
		if err != nil {
			return statusErrMsg{err: err}
		}
		return statusMsg(status)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m DashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statusMsg:
		m.status = supervisor.Status(msg)
		m.fetched = true
		m.lastErr = nil
	case statusErrMsg:
		m.lastErr = msg.err
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tickCmd())
	}
	return m, nil
}

func (m DashModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("workshell"))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("control API unreachable: " + m.lastErr.Error()))
		b.WriteString("\n\n")
	} else if !m.fetched {
		b.WriteString(dimStyle.Render("connecting..."))
		b.WriteString("\n\n")
	}

	if mode := m.status.Mode; mode != "" {
		b.WriteString(dimStyle.Render("mode: " + string(mode)))
		b.WriteString("\n\n")
	}

	panes := []struct {
		name string
		info supervisor.Info
	}{
		{"opencode", m.status.Engine},
		{"openwrk", m.status.Hub},
		{"openwork-server", m.status.Server},
		{"owpenbot", m.status.Bot},
	}
	for _, pane := range panes {
		b.WriteString(renderPane(pane.name, pane.info))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func renderPane(name string, info supervisor.Info) string {
	var lines []string

	state := stoppedStyle.Render("● stopped")
	if info.Running {
		state = runningStyle.Render("● running")
	}
	header := fmt.Sprintf("%-16s %s", name, state)
	if info.Running && info.PID > 0 {
		header += dimStyle.Render(fmt.Sprintf("  pid %d", info.PID))
	}
	lines = append(lines, header)

	if info.Connection != nil && info.Connection.BaseURL != "" {
		lines = append(lines, dimStyle.Render(info.Connection.BaseURL))
	}
	if info.LastError != "" {
		lines = append(lines, errorStyle.Render(lastLine(info.LastError)))
	}
	if !info.Running && info.LastStderr != "" {
		lines = append(lines, dimStyle.Render(lastLine(info.LastStderr)))
	}

	return paneStyle.Render(strings.Join(lines, "\n"))
}

// lastLine keeps panes single-height: only the newest line of a
// multi-line tail is shown.
func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}

// RunDash starts the dashboard program and blocks until quit.
func RunDash(client *StatusClient) error {
	p := tea.NewProgram(NewDashModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
