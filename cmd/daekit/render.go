package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/daekit/internal/solver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ccff"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ff88")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff4444")).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 2)
)

func renderFlag(f solver.Flag) string {
	if f.Success() {
		return valueStyle.Render(f.String())
	}
	return failStyle.Render(f.String())
}

// renderStats lays out the integrator counters of one solution as a
// bordered two-column panel.
func renderStats(sol solver.Solution) string {
	rows := []struct {
		label string
		value string
	}{
		{"flag", sol.Flag.String()},
		{"steps", fmt.Sprintf("%d", sol.Stats.Steps)},
		{"residual evals", fmt.Sprintf("%d", sol.Stats.ResEvals)},
		{"jacobian setups", fmt.Sprintf("%d", sol.Stats.JacSetups)},
		{"newton iterations", fmt.Sprintf("%d", sol.Stats.NonlinIters)},
		{"error test failures", fmt.Sprintf("%d", sol.Stats.ErrTestFails)},
		{"convergence failures", fmt.Sprintf("%d", sol.Stats.NonlinConvFails)},
		{"last order", fmt.Sprintf("%d", sol.Stats.LastOrder)},
		{"last step", fmt.Sprintf("%.3g", sol.Stats.LastStep)},
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-22s", r.label)))
		b.WriteString(valueStyle.Render(r.value))
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// renderPlot draws one state (or output) column of a solution.
func renderPlot(sol solver.Solution, col int, caption string) string {
	if len(sol.Y) == 0 || col >= len(sol.Y[0]) {
		return labelStyle.Render("nothing to plot")
	}
	data := make([]float64, len(sol.Y))
	for i := range sol.Y {
		data[i] = sol.Y[i][col]
	}
	return asciigraph.Plot(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}
