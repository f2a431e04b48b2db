package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"ha-floorplan/internal/relay/handlers"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/dashboard"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Palette
// ============================================================

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleHeader      = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
)

// ============================================================
// Status output
// ============================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// ============================================================
// Tables
// ============================================================

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// plansTable - список планов из базы.
func plansTable(plans []models.Floorplan) string {
	t := newTable("Plan", "File", "Size", "Format", "Widgets", "Updated")
	for _, p := range plans {
		size := "unknown"
		if !p.Natural().Degenerate() {
			size = formatSize(p.Natural())
		}
		t.Row(p.ID, p.Filename, size, "v"+strconv.Itoa(p.FormatVersion), strconv.Itoa(len(p.Positions)), p.UpdatedAt)
	}
	return t.Render()
}

// layoutTable - серверная проекция позиций.
func layoutTable(resp handlers.LayoutResponse) string {
	var b strings.Builder
	vp := resp.Viewport
	b.WriteString(StyleTitle.Render("Plan "+resp.FloorplanID) + "\n")
	b.WriteString(StyleDim.Render(fmt.Sprintf("natural %s, displayed %s at %s",
		formatSize(vp.Natural), formatSize(vp.Displayed), formatPoint(vp.Offset))) + "\n")

	t := newTable("Entity", "Kind", "Left", "Top", "Width", "Height")
	for _, p := range resp.Placements {
		t.Row(p.ID, p.Kind.String(), formatFloat(p.Rect.Left), formatFloat(p.Rect.Top), formatFloat(p.Rect.Width), formatFloat(p.Rect.Height))
	}
	b.WriteString(t.Render())
	return b.String()
}

// viewTable - экран безголового дашборда.
func viewTable(v dashboard.View, vp layout.Viewport) string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render(v.Title))
	if v.Saving {
		b.WriteString(" " + StyleDim.Render("(saving)"))
	} else if !v.LastSave.IsZero() {
		b.WriteString(" " + StyleDim.Render("(saved "+v.LastSave.Format("15:04:05")+")"))
	}
	b.WriteString("\n")
	if v.NoPlan {
		b.WriteString(StyleWarning.Render("no floorplan loaded") + "\n")
		return b.String()
	}
	b.WriteString(StyleDim.Render(fmt.Sprintf("plan %s shown as %s at %s",
		formatSize(vp.Natural), formatSize(vp.Displayed), formatPoint(vp.Offset))) + "\n")

	t := newTable("Entity", "Kind", "Position", "Label", "Classes")
	for _, w := range v.Widgets {
		t.Row(w.ID, w.Kind.String(), formatPoint(w.Rect.TopLeft()), w.Label, strings.Join(w.Classes, " "))
	}
	b.WriteString(t.Render())
	if v.Notice != "" {
		b.WriteString("\n" + StyleWarning.Render(v.Notice))
	}
	return b.String()
}

// formatFloat округляет до сотых.
func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func formatSize(s layout.Size) string {
	return formatFloat(s.Width) + "x" + formatFloat(s.Height)
}

func formatPoint(p layout.Point) string {
	return "(" + formatFloat(p.X) + ", " + formatFloat(p.Y) + ")"
}
