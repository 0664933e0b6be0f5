package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#00FF99")
	colorHeader  = lipgloss.Color("#874BFD")
	colorTextSub = lipgloss.Color("#64748B")
	colorDanger  = lipgloss.Color("#FF0055")
	colorWarning = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	labelStyle   = lipgloss.NewStyle().Foreground(colorTextSub).Width(24)
	valueStyle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorTextSub)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorHeader).
			Padding(0, 1)
)

type kv struct {
	Label string
	Value string
}

// card renders label/value pairs in a bordered box.
func card(title string, rows []kv) string {
	lines := []string{titleStyle.UnsetMarginBottom().Render(title)}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r.Label), valueStyle.Render(r.Value)))
	}
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func warnLine(format string, args ...any) string {
	return warnStyle.Render("[WARN] ") + fmt.Sprintf(format, args...)
}

func successLine(format string, args ...any) string {
	return successStyle.Render("[SUCCESS] ") + fmt.Sprintf(format, args...)
}

// sparkline scales data onto block characters.
func sparkline(data []float64) string {
	if len(data) == 0 {
		return "[NO DATA]"
	}
	bars := []string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var s strings.Builder
	for _, v := range data {
		if hi == lo {
			s.WriteString(bars[len(bars)/2])
			continue
		}
		idx := int((v - lo) / (hi - lo) * float64(len(bars)-1))
		s.WriteString(bars[idx])
	}
	return s.String()
}
