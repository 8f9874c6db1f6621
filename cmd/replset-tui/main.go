// Command replset-tui runs an in-process replica set and shows a live
// describe dashboard. Members can be stopped and restarted and writes
// issued from the keyboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/dd0wney/cluso-replset/pkg/cluster"
	"github.com/dd0wney/cluso-replset/pkg/lab"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 2).
			MarginRight(2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

const refreshInterval = 250 * time.Millisecond

type keyMap struct {
	Kill     key.Binding
	Stop     key.Binding
	Restore  key.Binding
	WriteOne key.Binding
	WriteMaj key.Binding
	WriteAll key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Kill: key.NewBinding(
		key.WithKeys("k"),
		key.WithHelp("k", "kill primary"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop selected"),
	),
	Restore: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "restore all"),
	),
	WriteOne: key.NewBinding(
		key.WithKeys("1"),
		key.WithHelp("1", "write w=1"),
	),
	WriteMaj: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "write majority"),
	),
	WriteAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "write all"),
	),
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Kill, k.Stop, k.Restore, k.WriteOne, k.WriteMaj, k.WriteAll, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Kill, k.Stop, k.Restore},
		{k.WriteOne, k.WriteMaj, k.WriteAll},
		{k.Up, k.Down, k.Quit},
	}
}

type model struct {
	lab        *lab.Lab
	nodeTable  table.Model
	help       help.Model
	keys       keyMap
	status     cluster.Status
	writes     int
	message    string
	messageErr bool
	width      int
}

type tickMsg time.Time

type writeDoneMsg struct {
	key     string
	concern cluster.WriteConcern
	seq     uint64
	elapsed time.Duration
	err     error
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func initialModel(l *lab.Lab) model {
	columns := []table.Column{
		{Title: "Member", Width: 10},
		{Title: "Role", Width: 12},
		{Title: "Applied", Width: 8},
		{Title: "Last term", Width: 9},
		{Title: "Committed", Width: 9},
		{Title: "Lag", Width: 5},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(l.Cluster().Nodes())+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	m := model{
		lab:       l,
		nodeTable: t,
		help:      help.New(),
		keys:      keys,
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case writeDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("%s write of %s failed: %v", msg.concern, msg.key, msg.err))
		} else {
			m.setInfo(fmt.Sprintf("%s written at seq %d with %s in %s",
				msg.key, msg.seq, msg.concern, msg.elapsed.Round(time.Microsecond)))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Kill):
			p, _, err := m.lab.Cluster().Primary()
			if err != nil {
				m.setError("no primary to kill")
				break
			}
			p.MarkUnreachable()
			m.setInfo(p.ID() + " stopped; election pending")

		case key.Matches(msg, m.keys.Stop):
			if row := m.nodeTable.SelectedRow(); row != nil {
				if n, err := m.lab.Cluster().Node(row[0]); err == nil {
					n.MarkUnreachable()
					m.setInfo(n.ID() + " stopped")
				}
			}

		case key.Matches(msg, m.keys.Restore):
			restored := make([]string, 0)
			for _, n := range m.lab.Cluster().Nodes() {
				if !n.Reachable() {
					n.MarkReachable()
					restored = append(restored, n.ID())
				}
			}
			if len(restored) == 0 {
				m.setInfo("every member is already reachable")
			} else {
				m.setInfo("restored " + strings.Join(restored, ", "))
			}

		case key.Matches(msg, m.keys.WriteOne):
			return m.write(cluster.One)
		case key.Matches(msg, m.keys.WriteMaj):
			return m.write(cluster.Majority)
		case key.Matches(msg, m.keys.WriteAll):
			return m.write(cluster.All)
		}
		m.refresh()
	}

	m.nodeTable, cmd = m.nodeTable.Update(msg)
	return m, cmd
}

// write issues a write in the background so a blocked concern does not
// freeze the dashboard
func (m model) write(concern cluster.WriteConcern) (tea.Model, tea.Cmd) {
	m.writes++
	name := fmt.Sprintf("tui/%04d", m.writes)
	cl := m.lab.Client()
	m.setInfo(fmt.Sprintf("writing %s with %s...", name, concern))

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		start := time.Now()
		seq, err := cl.Write(ctx, name, []byte(time.Now().Format(time.RFC3339Nano)), concern, nil)
		return writeDoneMsg{key: name, concern: concern, seq: seq, elapsed: time.Since(start), err: err}
	}
}

func (m *model) refresh() {
	m.status = m.lab.Status()
	m.nodeTable.SetRows(statusRows(m.status))
}

func (m *model) setInfo(s string) {
	m.message, m.messageErr = s, false
}

func (m *model) setError(s string) {
	m.message, m.messageErr = s, true
}

// statusRows converts a describe snapshot into table rows
func statusRows(st cluster.Status) []table.Row {
	rows := make([]table.Row, 0, len(st.Nodes))
	for _, n := range st.Nodes {
		rows = append(rows, table.Row{
			n.ID,
			n.Role.String(),
			fmt.Sprint(n.LastAppliedSeq),
			fmt.Sprint(n.LastTerm),
			fmt.Sprint(n.CommitSeq),
			fmt.Sprint(n.Lag),
		})
	}
	return rows
}

func summary(st cluster.Status) string {
	primary := st.Primary
	if primary == "" {
		primary = "none"
	}
	return fmt.Sprintf(`Replica set
━━━━━━━━━━━━━━━
Phase:     %s
Primary:   %s
Term:      %d
Commit:    %d
Reachable: %d/%d
Elections: %d`,
		st.Phase, primary, st.Term, st.Commit.Seq, st.Reachable, st.Members, st.Rounds)
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("replset - live describe"))
	s.WriteString("\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		statsBoxStyle.Render(summary(m.status)),
		m.nodeTable.View(),
	)
	s.WriteString(contentStyle.Render(body))

	if m.message != "" {
		s.WriteString("\n\n  ")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

func main() {
	_ = godotenv.Load(".env")

	cfg := lab.DefaultConfig()
	if path := os.Getenv("REPLSET_CONFIG"); path != "" {
		var err error
		if cfg, err = lab.LoadConfig(path); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// the dashboard owns the terminal; logs are dropped unless LOG_FILE is set
	var out io.Writer = io.Discard
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		out = f
	}
	logger := logging.NewJSONLogger(out, logging.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	l, err := lab.New(ctx, cfg, logger, metrics.DefaultRegistry())
	cancel()
	if err != nil {
		log.Fatalf("Failed to start replica set: %v", err)
	}
	defer l.Close()

	p := tea.NewProgram(initialModel(l), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
