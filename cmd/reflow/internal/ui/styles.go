package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/recera/reflow/pkg/diag"
)

// Style definitions
var (
	// Colors
	primaryColor   = lipgloss.Color("#3b82f6")
	secondaryColor = lipgloss.Color("#64748b")
	successColor   = lipgloss.Color("#10b981")
	warningColor   = lipgloss.Color("#f59e0b")
	errorColor     = lipgloss.Color("#ef4444")
	mutedColor     = lipgloss.Color("#94a3b8")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	errorBoxStyle = boxStyle.
			BorderForeground(errorColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

var kindStyles = map[diag.Kind]lipgloss.Style{
	diag.CompileError:       errorStyle,
	diag.EvaluationError:    warningStyle.Bold(true),
	diag.ConfigurationError: errorStyle,
}

// FormatDiagnostic renders one failure as a short styled block.
func FormatDiagnostic(e *diag.Error) string {
	style, ok := kindStyles[e.Kind]
	if !ok {
		style = errorStyle
	}
	msg := e.Kind.String() + " error"
	if e.Err != nil {
		msg = e.Err.Error()
	}

	var sb strings.Builder
	sb.WriteString(style.Render("∴ "+e.Kind.String()) + " " + msg + "\n")
	where := e.Label
	if e.Expr != "" {
		where += fmt.Sprintf("=%q", e.Expr)
	}
	sb.WriteString("  " + mutedStyle.Render(where))
	if e.Element != nil {
		sb.WriteString(" " + subtitleStyle.Render("on "+diag.Describe(e.Element)))
	}
	return sb.String()
}

// FormatDiagnostics renders failures one per block, or a success line.
func FormatDiagnostics(errs []*diag.Error) string {
	if len(errs) == 0 {
		return successStyle.Render("✓ no errors")
	}
	blocks := make([]string, len(errs))
	for i, e := range errs {
		blocks[i] = FormatDiagnostic(e)
	}
	return strings.Join(blocks, "\n")
}

// Sink prints every failure of a pass to w.
func Sink(w io.Writer) diag.Sink {
	return func(errs []*diag.Error) {
		for _, e := range errs {
			fmt.Fprintln(w, FormatDiagnostic(e))
		}
	}
}

// Title renders a heading line.
func Title(s string) string {
	return titleStyle.Render(s)
}
