package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/policy"
)

var (
	accent = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	accentStyle  = lipgloss.NewStyle().Foreground(accent)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	labelStyle   = lipgloss.NewStyle().Foreground(dim)
)

func successMsg(format string, a ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func warnMsg(format string, a ...any) string {
	return warnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func errorMsg(format string, a ...any) string {
	return errorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func infoMsg(format string, a ...any) string {
	return accentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

type pair struct {
	key, value string
}

// keyValues renders aligned "key:  value" lines.
func keyValues(indent string, pairs ...pair) string {
	width := 0
	for _, p := range pairs {
		if len(p.key) > width {
			width = len(p.key)
		}
	}
	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", width+1, p.key+":")
		sb.WriteString(indent + labelStyle.Render(label) + " " + p.value + "\n")
	}
	return sb.String()
}

// renderTable renders rows under headers with rounded borders.
func renderTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...)
	return t.Render()
}

func stageStatus(status string) string {
	switch engine.StageStatus(status) {
	case engine.StagePerformed:
		return successStyle.Render(status)
	case engine.StageFailed:
		return errorStyle.Render(status)
	default:
		return mutedStyle.Render(status)
	}
}

func outcomeText(o engine.Outcome) string {
	switch o {
	case engine.OutcomeClean:
		return successStyle.Render(string(o))
	case engine.OutcomeWarnings:
		return warnStyle.Render(string(o))
	default:
		return errorStyle.Render(string(o))
	}
}

func findingLine(f policy.Finding) string {
	msg := f.Message
	if f.Field != "" {
		msg += mutedStyle.Render(" (" + f.Field + ")")
	}
	switch f.Severity {
	case policy.SeverityError:
		return errorMsg("%s: %s", f.Policy, msg)
	case policy.SeverityWarning:
		return warnMsg("%s: %s", f.Policy, msg)
	default:
		return infoMsg("%s: %s", f.Policy, msg)
	}
}
