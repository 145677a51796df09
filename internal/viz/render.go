// Package viz renders simulation state for terminals: a live readout panel and
// history charts.
package viz

import (
	"fmt"
	"strings"

	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

var (
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	playStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	pauseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

// NetForce is the resultant force implied by the measured acceleration (F = m·a)
func NetForce(cfg models.SimulationConfig, live models.LiveData) float64 {
	return cfg.Mass * live.Acceleration
}

// Readout renders the configuration and live observables as a bordered panel
func Readout(cfg models.SimulationConfig, live models.LiveData, elapsed float64) string {
	state := pauseStyle.Render("PAUSED")
	if cfg.IsPlaying {
		state = playStyle.Render("PLAYING")
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("Force & Motion")+"  "+state,
		row("time", fmt.Sprintf("%.2f s", elapsed)),
		row("mass", fmt.Sprintf("%.2f kg", cfg.Mass)),
		row("applied force", fmt.Sprintf("%.2f N", cfg.Force)),
		row("friction", fmt.Sprintf("%.2f", cfg.Friction)),
		row("net force", fmt.Sprintf("%.2f N", NetForce(cfg, live))),
		row("position", fmt.Sprintf("%.3f m", live.Position)),
		row("velocity", fmt.Sprintf("%.3f m/s", live.Velocity)),
		row("acceleration", fmt.Sprintf("%.3f m/s²", live.Acceleration)),
	)
	return panelStyle.Render(body)
}

// Series extracts one observable from the history
func Series(points []models.DataPoint, pick func(models.DataPoint) float64) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = pick(p)
	}
	return out
}

// Charts plots position, velocity and acceleration over the history
func Charts(points []models.DataPoint, width, height int) string {
	if len(points) == 0 {
		return "no data recorded (simulation never played)"
	}
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 10
	}

	span := fmt.Sprintf("t = %.2f..%.2f s", points[0].Time, points[len(points)-1].Time)
	charts := []struct {
		caption string
		pick    func(models.DataPoint) float64
	}{
		{"position (m), " + span, func(p models.DataPoint) float64 { return p.Position }},
		{"velocity (m/s), " + span, func(p models.DataPoint) float64 { return p.Velocity }},
		{"acceleration (m/s²), " + span, func(p models.DataPoint) float64 { return p.Acceleration }},
	}

	var b strings.Builder
	for i, c := range charts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(asciigraph.Plot(Series(points, c.pick),
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(c.caption),
		))
	}
	return b.String()
}
