package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Section is a labelled region of a [Frame].
type Section struct {
	Label string

	// Lines is the section content. When it exceeds the section height the
	// last lines are shown.
	Lines []string

	// Height fixes the number of content rows. Zero shares the remaining
	// rows evenly with the other flexible sections.
	Height int
}

// Frame renders a bordered full-screen layout with a title line, sections
// and a help line below the border.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the frame for a terminal of the given size.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 6 {
		return "Loading..."
	}

	bc := f.Styles.Border
	inner := width - 4

	lines := make([]string, 0, height)
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := f.Styles.Title.Render(f.Title)
	padding := max(0, width-4-lipgloss.Width(title)-lipgloss.Width(f.Status))
	lines = append(lines, bc.Render("│")+" "+title+strings.Repeat(" ", padding)+f.Status+" "+bc.Render("│"))

	heights := f.sectionHeights(height)
	for i, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec, heights[i], width, inner)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(ansi.Truncate(f.Help, width, "…")))
	return strings.Join(lines, "\n")
}

// sectionHeights distributes the rows left after borders, title, section
// separators and the help line.
func (f Frame) sectionHeights(height int) []int {
	avail := height - 4 - len(f.Sections)
	flex := 0
	for _, s := range f.Sections {
		if s.Height > 0 {
			avail -= s.Height
		} else {
			flex++
		}
	}
	share := 1
	if flex > 0 {
		share = max(avail/flex, 1)
	}
	out := make([]int, len(f.Sections))
	for i, s := range f.Sections {
		if s.Height > 0 {
			out[i] = s.Height
		} else {
			out[i] = share
		}
	}
	return out
}

func (f Frame) renderSection(bc lipgloss.Style, sec Section, rows, width, inner int) []string {
	label := f.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(label))
	out := []string{bc.Render("├─") + label + bc.Render(strings.Repeat("─", padding)+"┤")}

	start := max(0, len(sec.Lines)-rows)
	for i := range rows {
		text := ""
		if idx := start + i; idx < len(sec.Lines) {
			text = ansi.Truncate(sec.Lines[idx], inner, "…")
		}
		out = append(out, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return out
}
