package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/transcript"
)

// StatusText returns the status badge text for s.
func StatusText(s session.State) string {
	switch s {
	case session.Idle:
		return "Offline"
	case session.Connecting:
		return "Connecting..."
	case session.Listening:
		return "Online"
	case session.Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ButtonLabel returns the call-to-action label for s and whether the
// control is enabled.
func ButtonLabel(s session.State) (string, bool) {
	switch s {
	case session.Idle, session.Error:
		return "Activate", true
	case session.Connecting:
		return "Connecting...", false
	case session.Listening:
		return "Deactivate", true
	default:
		return "Activate", false
	}
}

// emptyTranscript is shown before the first entry arrives.
const emptyTranscript = "Awaiting connection..."

// TranscriptLines renders entries wrapped to width. Open entries are drawn
// faint.
func TranscriptLines(entries []transcript.Entry, width int, st Styles) []string {
	if len(entries) == 0 {
		return []string{st.Help.Render(emptyTranscript)}
	}
	width = max(width, 12)

	var lines []string
	for _, e := range entries {
		tag, tagStyle := "JARVIS", st.Assistant
		if e.Speaker == transcript.User {
			tag, tagStyle = "You", st.User
		}
		prefix := tag + " › "
		indent := strings.Repeat(" ", ansi.StringWidth(prefix))

		body := ansi.Wordwrap(e.Text, width-len(indent), "")
		for i, row := range strings.Split(body, "\n") {
			if !e.Final {
				row = st.Partial.Render(row)
			}
			if i == 0 {
				lines = append(lines, tagStyle.Render(prefix)+row)
			} else {
				lines = append(lines, indent+row)
			}
		}
	}
	return lines
}

// levels are the eighth-block glyphs used by [Bars], from empty to full.
var levels = []rune(" ▁▂▃▄▅▆▇█")

// barSpan is the fraction of frequency bins drawn. Speech energy sits in the
// lower bins; the top of the spectrum is mostly silent.
const barSpan = 0.4

// Bars renders frequency magnitudes as a bar chart of width columns and
// height rows, top row first.
func Bars(freq []byte, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	bins := int(math.Ceil(float64(len(freq)) * barSpan))
	cells := make([]int, width)
	if bins > 0 {
		for x := range width {
			v := freq[x*bins/width]
			cells[x] = int(v) * height * 8 / 255
		}
	}

	rows := make([]string, height)
	var b strings.Builder
	for r := range height {
		b.Reset()
		floor := (height - 1 - r) * 8
		for _, c := range cells {
			fill := min(max(c-floor, 0), 8)
			b.WriteRune(levels[fill])
		}
		rows[r] = b.String()
	}
	return rows
}

// Wave renders an idle sine trace for phase, shown while listening with no
// output spectrum available.
func Wave(phase float64, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	mid := float64(height-1) / 2
	for x := range width {
		y := mid + mid*math.Sin(float64(x)*0.25+phase)
		grid[int(math.Round(y))][x] = '•'
	}
	rows := make([]string, height)
	for r, g := range grid {
		rows[r] = string(g)
	}
	return rows
}

// silent reports whether freq carries no energy.
func silent(freq []byte) bool {
	for _, v := range freq {
		if v != 0 {
			return false
		}
	}
	return true
}
