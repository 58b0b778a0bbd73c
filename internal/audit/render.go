package audit

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("9"))
)

// outcomeColumn is the index of the outcome column in RenderHistory.
const outcomeColumn = 3

// RenderHistory formats entries as a table, oldest at the bottom as
// returned by Latest. Failed outcomes are highlighted.
func RenderHistory(entries []Entry) string {
	if len(entries) == 0 {
		return "No commands recorded yet.\n"
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		name := e.LightName
		if name == "" {
			name = strconv.Itoa(e.LightID)
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			name,
			e.Delta,
			e.Outcome,
			strconv.Itoa(e.Attempts),
			e.Latency.String(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TIME", "LIGHT", "CHANGE", "OUTCOME", "TRIES", "LATENCY").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(rows) && col == outcomeColumn && isFailure(rows[row][outcomeColumn]):
				return failedStyle
			default:
				return cellStyle
			}
		})
	return t.Render() + "\n"
}

func isFailure(outcome string) bool {
	switch outcome {
	case "reverted", "rejected", "unreachable":
		return true
	}
	return false
}
