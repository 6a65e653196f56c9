package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentworkforce/omisync/internal/omisync"
)

// palette is shared by every command that prints a summary. The renderer
// is bound to the output writer, so piped output carries no escape codes.
type palette struct {
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	hint  lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7")),
		label: r.NewStyle().Width(22),
		value: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true),
		hint:  r.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true),
	}
}

type row struct {
	label string
	value string
}

func (p palette) rows(rows []row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, "  "+p.label.Render(r.label)+p.value.Render(r.value))
	}
	return strings.Join(lines, "\n")
}

func renderResult(w io.Writer, result omisync.Result) {
	p := newPalette(w)
	s := result.Stats
	fmt.Fprintln(w, p.title.Render("Sync summary")+" "+p.hint.Render("run "+result.RunID))
	fmt.Fprintln(w, p.rows([]row{
		{"records", fmt.Sprint(s.Records)},
		{"finalized", fmt.Sprint(s.Finalized)},
		{"skipped (malformed)", fmt.Sprint(s.RecordsSkipped)},
		{"changed", fmt.Sprint(s.RecordsChanged)},
		{"dates", fmt.Sprint(s.Partitions)},
		{"raw files", fmt.Sprint(s.AggregateFiles)},
		{"event files", fmt.Sprint(s.DetailFiles)},
		{"highlights files", fmt.Sprint(s.DigestFiles)},
		{"event files removed", fmt.Sprint(s.DetailRemoved)},
	}))
	fmt.Fprintln(w, p.ok.Render(result.Status))
}
