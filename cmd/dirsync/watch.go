package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/dirsync/internal/controlplane/handlers"
	"github.com/openmined/dirsync/internal/cpclient"
	"github.com/openmined/dirsync/internal/eventlog"
	"github.com/spf13/cobra"
)

const (
	pollInterval = time.Second
	maxEvents    = 12

	txtWatchHelp     = "'s' sync now. 'x' stop the sync. 'q' to quit."
	txtSyncRequested = "Sync requested."
	txtStopRequested = "Stop requested."
)

var (
	watchTitleStyle = cyan.Bold(true)
	watchErrorStyle = red
	watchHelpStyle  = gray
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running daemon in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			m := newWatchModel(cmd.Context(), controlPlaneClient(cmd))
			if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	addControlPlaneFlags(cmd.Flags())
	return cmd
}

type watchModel struct {
	ctx    context.Context
	client *cpclient.Client

	spinner spinner.Model
	status  *handlers.StatusResponse
	events  []eventlog.Entry
	token   int64

	message string
	err     error
}

// --- Messages ---
type pollMsg struct {
	status *handlers.StatusResponse
	logs   *handlers.LogsResponse
	err    error
}
type pollTickMsg struct{}
type actionMsg struct {
	message string
	err     error
}

func newWatchModel(ctx context.Context, client *cpclient.Client) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return watchModel{
		ctx:     ctx,
		client:  client,
		spinner: s,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// poll fetches the status and the events after the last seen token.
func (m watchModel) poll() tea.Cmd {
	token := m.token
	return func() tea.Msg {
		status, err := m.client.Status(m.ctx)
		if err != nil {
			return pollMsg{err: err}
		}
		logs, err := m.client.Logs(m.ctx, token, 100)
		return pollMsg{status: status, logs: logs, err: err}
	}
}

func (m watchModel) action(do func(context.Context) error, message string) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{message: message, err: do(m.ctx)}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "s":
			return m, m.action(m.client.Sync, txtSyncRequested)
		case "x":
			return m, m.action(m.client.Stop, txtStopRequested)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		m.err = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		if msg.logs != nil {
			m.events = append(m.events, msg.logs.Logs...)
			if len(m.events) > maxEvents {
				m.events = m.events[len(m.events)-maxEvents:]
			}
			m.token = msg.logs.NextToken
		}
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })

	case pollTickMsg:
		return m, m.poll()

	case actionMsg:
		m.err = msg.err
		m.message = ""
		if msg.err == nil {
			m.message = msg.message
		}
	}

	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("dirsync"))
	b.WriteString("\n\n")

	if s := m.status; s != nil {
		state := green.Render(string(s.State))
		if s.Running {
			state = fmt.Sprintf("%s %s", m.spinner.View(), yellow.Render(string(s.State)))
		}
		b.WriteString(fmt.Sprintf("%s%s\n", gray.Render("State    "), state))
		if s.Summary != "" {
			b.WriteString(fmt.Sprintf("%s%s\n", gray.Render("Last     "), s.Summary))
		}
	} else if m.err == nil {
		b.WriteString(fmt.Sprintf("%s connecting...\n", m.spinner.View()))
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			var line strings.Builder
			printEvent(&line, e)
			b.WriteString(line.String())
		}
	}

	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(green.Render(m.message))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(watchErrorStyle.Render("ERROR: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(watchHelpStyle.Render(txtWatchHelp))
	b.WriteString("\n")
	return b.String()
}
