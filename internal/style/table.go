package style

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Alignment controls how a cell is padded within its column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Column describes one table column.
type Column struct {
	Name  string
	Width int
	Align Alignment
	Style func(string) string
}

// Table renders fixed-width text tables for status output.
type Table struct {
	columns   []Column
	rows      [][]string
	headerSep bool
	indent    string
}

// NewTable creates a table with a header separator and two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		headerSep: true,
		indent:    "  ",
	}
}

// SetIndent sets the prefix written before every line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the line under the header.
func (t *Table) SetHeaderSeparator(enabled bool) *Table {
	t.headerSep = enabled
	return t
}

// AddRow appends a row, padding missing cells with empty strings.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render returns the table as text, one line per row plus the header.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(t.indent)
	for i, col := range t.columns {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(t.pad(Bold.Render(col.Name), col.Name, col.Width, col.Align))
	}
	sb.WriteString("\n")

	if t.headerSep {
		sb.WriteString(t.indent)
		total := 0
		for i, col := range t.columns {
			if i > 0 {
				total++
			}
			total += col.Width
		}
		sb.WriteString(Dim.Render(strings.Repeat("─", total)))
		sb.WriteString("\n")
	}

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			if i > 0 {
				sb.WriteString(" ")
			}
			plain := truncate(stripAnsi(row[i]), col.Width)
			styled := plain
			if col.Style != nil {
				styled = col.Style(plain)
			}
			sb.WriteString(t.pad(styled, plain, col.Width, col.Align))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// pad pads styled to width using the visible length of plain.
func (t *Table) pad(styled, plain string, width int, align Alignment) string {
	n := utf8.RuneCountInString(plain)
	if n >= width {
		return styled
	}
	gap := width - n
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

func truncate(s string, width int) string {
	if width <= 3 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
