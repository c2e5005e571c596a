package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// TableStyle selects how a Table is rendered.
type TableStyle int

const (
	// StylePlain aligns columns with spaces, for terminals and devmode blocks.
	StylePlain TableStyle = iota

	// StyleMarkdown renders a GitHub-flavored markdown table.
	StyleMarkdown
)

// Table collects rows and renders them as aligned text or markdown. Nothing
// is written until Render; a table with no rows renders nothing.
type Table struct {
	w        io.Writer
	style    TableStyle
	headers  []string
	rows     [][]string
	maxWidth map[int]int // column index -> max width (0 = unlimited)
}

// NewTable creates a plain table that writes to w with the given headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:        w,
		headers:  headers,
		maxWidth: make(map[int]int),
	}
}

// NewMarkdownTable creates a markdown table.
func NewMarkdownTable(w io.Writer, headers ...string) *Table {
	t := NewTable(w, headers...)
	t.style = StyleMarkdown
	return t
}

// SetMaxWidth sets the maximum width of a column (0-indexed). Longer values
// are truncated with "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// AddRow appends a row. Extra values are ignored and missing ones are empty.
func (t *Table) AddRow(values ...string) {
	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, values[i])
		}
	}
	t.rows = append(t.rows, cells)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table.
func (t *Table) Render() error {
	if len(t.rows) == 0 {
		return nil
	}
	if t.style == StyleMarkdown {
		return t.renderMarkdown()
	}
	return t.renderPlain()
}

func (t *Table) renderPlain() error {
	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	lines := append([][]string{t.headers, sep}, t.rows...)
	for _, cells := range lines {
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (t *Table) renderMarkdown() error {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(c, "|", `\|`))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(t.headers)
	b.WriteString("|")
	for range t.headers {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, r := range t.rows {
		writeRow(r)
	}

	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *Table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	if !ok || max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
