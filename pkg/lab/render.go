package lab

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dd0wney/cluso-replset/pkg/cluster"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00FF00")).
		Padding(0, 1)

	expectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00")).
			Padding(0, 1)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// Render formats a report for the terminal
func Render(r *Report) string {
	var s strings.Builder

	verdict := okStyle.Render("PASSED")
	if !r.Passed() {
		verdict = failStyle.Render("FAILED")
	}
	s.WriteString(titleStyle.Render(fmt.Sprintf("Experiment: %s", r.Experiment)))
	s.WriteString(" " + verdict)
	s.WriteString(fmt.Sprintf(" in %s\n", r.Duration.Round(time.Millisecond)))

	steps := newTable("#", "Step", "Outcome", "Detail", "Elapsed").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(r.Steps) {
				return outcomeStyle(r.Steps[row].Outcome)
			}
			return cellStyle
		})
	for i, st := range r.Steps {
		detail := st.Detail
		if st.Error != "" {
			detail = strings.TrimSpace(detail + " " + st.Error)
		}
		steps.Row(fmt.Sprint(i+1), st.Name, st.Outcome.String(), detail, st.Elapsed.Round(time.Microsecond).String())
	}
	s.WriteString(steps.String())
	s.WriteString("\n")

	if len(r.Latencies) > 0 {
		lat := newTable("Write concern", "Samples", "Mean", "Std dev", "Failures").
			StyleFunc(headerOrCell)
		for _, l := range r.Latencies {
			lat.Row(l.Concern, fmt.Sprint(l.Samples),
				l.Mean.Round(time.Microsecond).String(), l.StdDev.Round(time.Microsecond).String(),
				fmt.Sprint(l.Failures))
		}
		s.WriteString(lat.String())
		s.WriteString("\n")
	}

	if len(r.Observations) > 0 {
		obs := newTable("Observation", "Value").StyleFunc(headerOrCell)
		for _, k := range r.ObservationKeys() {
			obs.Row(k, r.Observations[k])
		}
		s.WriteString(obs.String())
		s.WriteString("\n")
	}

	return s.String()
}

// RenderStatus formats a describe snapshot as a table
func RenderStatus(st cluster.Status) string {
	var s strings.Builder

	primary := st.Primary
	if primary == "" {
		primary = "none"
	}
	s.WriteString(titleStyle.Render("Replica set"))
	s.WriteString(fmt.Sprintf(" phase=%s term=%d primary=%s commit=%d reachable=%d/%d elections=%d\n",
		st.Phase, st.Term, primary, st.Commit.Seq, st.Reachable, st.Members, st.Rounds))

	nodes := newTable("Member", "Role", "Applied", "Last term", "Term", "Committed", "Lag").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(st.Nodes) {
				return roleStyle(st.Nodes[row].Role)
			}
			return cellStyle
		})
	for _, n := range st.Nodes {
		nodes.Row(n.ID, n.Role.String(), fmt.Sprint(n.LastAppliedSeq), fmt.Sprint(n.LastTerm),
			fmt.Sprint(n.Term), fmt.Sprint(n.CommitSeq), fmt.Sprint(n.Lag))
	}
	s.WriteString(nodes.String())
	s.WriteString("\n")
	return s.String()
}

func headerOrCell(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func outcomeStyle(o Outcome) lipgloss.Style {
	switch o {
	case OutcomeOK:
		return okStyle
	case OutcomeExpectedError:
		return expectedStyle
	default:
		return failStyle
	}
}

func roleStyle(r cluster.Role) lipgloss.Style {
	switch r {
	case cluster.RolePrimary:
		return okStyle.Bold(true)
	case cluster.RoleUnreachable:
		return failStyle
	default:
		return cellStyle
	}
}
