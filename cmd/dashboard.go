package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
)

func printSuccess(w io.Writer, format string, args ...any) { success.Fprintf(w, format+"\n", args...) }
func printWarn(w io.Writer, format string, args ...any)    { warn.Fprintf(w, format+"\n", args...) }
func printError(w io.Writer, format string, args ...any)   { danger.Fprintf(w, format+"\n", args...) }
func printInfo(w io.Writer, format string, args ...any)    { accent.Fprintf(w, format+"\n", args...) }

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	healthStyles = map[sim.Health]lipgloss.Style{
		sim.HealthHealthy:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		sim.HealthDegraded: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		sim.HealthFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

// renderDashboard draws one snapshot as terminal panels: scores, provider
// sections and per-service health.
func renderDashboard(s game.Snapshot) string {
	m := s.Metrics
	status := string(s.State)
	if s.Reason != "" {
		status += " (" + s.Reason + ")"
	}
	scores := []string{
		titleStyle.Render(fmt.Sprintf("tick %d  %s", s.Tick, s.SimTime.Format("15:04:05"))),
		row("status", status),
		row("availability", fmt.Sprintf("%.2f%%", m.Availability)),
		row("latency", fmt.Sprintf("%.1f ms", m.AvgLatencyMs)),
		row("reputation", fmt.Sprintf("%.1f", m.Reputation)),
		row("requests", fmt.Sprintf("%d offered, %d ok, %d dropped, %d blocked", m.Offered, m.Processed, m.Dropped, m.Blocked)),
		row("tick cost", fmt.Sprintf("%.4f", m.TotalCost)),
		row("total cost", s.TotalCost.StringFixed(4)),
		row("revenue", s.TotalRevenue.StringFixed(4)),
	}
	if s.SpikeRemaining > 0 {
		scores = append(scores, row("spike", fmt.Sprintf("x%.1f, %d ticks left", s.SpikeMultiplier, s.SpikeRemaining)))
	}
	if s.Attack != nil {
		scores = append(scores, row("attack", fmt.Sprintf("%s until tick %d", s.Attack.Vector, s.Attack.EndTick)))
	}

	sections := []string{titleStyle.Render("providers")}
	for _, sec := range s.Sections {
		sections = append(sections, row(string(sec.Provider), fmt.Sprintf("%d services, cost %s", len(sec.ServiceIDs), sec.Cost.StringFixed(4))))
	}

	services := []string{titleStyle.Render("services"), headerStyle.Render(fmt.Sprintf("%-24s %-9s %6s %-9s %8s", "id", "capacity", "load", "health", "cost"))}
	if len(s.Services) == 0 {
		services = append(services, "(none deployed)")
	}
	for _, st := range s.Services {
		health := healthStyles[st.Health].Render(fmt.Sprintf("%-9s", st.Health))
		services = append(services, fmt.Sprintf("%-24s %-9d %6.2f %s %8.4f", st.ID, st.Capacity, st.Load, health, st.Cost))
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(strings.Join(scores, "\n")),
		panelStyle.Render(strings.Join(sections, "\n")))
	return lipgloss.JoinVertical(lipgloss.Left, top, panelStyle.Render(strings.Join(services, "\n")))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}
