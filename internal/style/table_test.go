package style

import (
	"strings"
	"testing"
)

func TestNewTable(t *testing.T) {
	tbl := NewTable(
		Column{Name: "Component", Width: 12},
		Column{Name: "Action", Width: 8},
	)
	if len(tbl.columns) != 2 {
		t.Errorf("columns = %d, want 2", len(tbl.columns))
	}
	if !tbl.headerSep {
		t.Error("headerSep should default to true")
	}
	if tbl.indent != "  " {
		t.Errorf("indent = %q, want %q", tbl.indent, "  ")
	}
}

func TestTable_AddRow(t *testing.T) {
	tbl := NewTable(
		Column{Name: "Component", Width: 12},
		Column{Name: "Action", Width: 8},
	)

	t.Run("exact columns", func(t *testing.T) {
		tbl.AddRow("venv", "remove")
		if tbl.rows[0][0] != "venv" || tbl.rows[0][1] != "remove" {
			t.Errorf("row = %v, want [venv remove]", tbl.rows[0])
		}
	})

	t.Run("fewer columns padded", func(t *testing.T) {
		tbl.AddRow("memory")
		last := tbl.rows[len(tbl.rows)-1]
		if len(last) != 2 || last[1] != "" {
			t.Errorf("row = %q, want padded to 2 cells", last)
		}
	})

	t.Run("chaining", func(t *testing.T) {
		if tbl.AddRow("a", "b") != tbl {
			t.Error("AddRow should return the table for chaining")
		}
	})
}

func TestTable_Render(t *testing.T) {
	tests := []struct {
		name      string
		separator bool
		rows      [][]string
		wantLines int
	}{
		{"empty with separator", true, nil, 2},
		{"rows without separator", false, [][]string{{"venv", "remove"}, {"config", "keep"}}, 3},
		{"rows with separator", true, [][]string{{"logs", "remove"}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(
				Column{Name: "Component", Width: 12},
				Column{Name: "Action", Width: 8},
			).SetIndent("").SetHeaderSeparator(tt.separator)
			for _, r := range tt.rows {
				tbl.AddRow(r...)
			}

			lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
			if len(lines) != tt.wantLines {
				t.Fatalf("got %d lines, want %d: %q", len(lines), tt.wantLines, lines)
			}
			if tt.separator && !strings.Contains(stripAnsi(lines[1]), "─") {
				t.Errorf("separator line = %q", lines[1])
			}
		})
	}
}

func TestTable_Render_NoColumns(t *testing.T) {
	if got := NewTable().Render(); got != "" {
		t.Errorf("Render() with no columns = %q, want empty", got)
	}
}

func TestTable_Render_Indent(t *testing.T) {
	tbl := NewTable(Column{Name: "A", Width: 5}).SetIndent(">>>")
	tbl.AddRow("x")

	for _, line := range strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n") {
		if !strings.HasPrefix(line, ">>>") {
			t.Errorf("line missing indent: %q", line)
		}
	}
}

func TestTable_Render_Truncation(t *testing.T) {
	tbl := NewTable(Column{Name: "Path", Width: 8}).SetIndent("").SetHeaderSeparator(false)
	tbl.AddRow("/home/someone/.pocketclaw/venv")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	row := strings.TrimSpace(stripAnsi(lines[1]))
	if !strings.HasSuffix(row, "...") {
		t.Errorf("truncated row should end with '...': %q", row)
	}
	if len(row) > 8 {
		t.Errorf("truncated row too wide: %d chars", len(row))
	}
}

func TestTable_Pad(t *testing.T) {
	tbl := &Table{}
	tests := []struct {
		name  string
		text  string
		width int
		align Alignment
		want  string
	}{
		{"left", "hi", 6, AlignLeft, "hi    "},
		{"right", "hi", 6, AlignRight, "    hi"},
		{"center", "hi", 6, AlignCenter, "  hi  "},
		{"exact", "hello", 5, AlignLeft, "hello"},
		{"overflow", "toolong", 3, AlignLeft, "toolong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.pad(tt.text, tt.text, tt.width, tt.align); got != tt.want {
				t.Errorf("pad = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripAnsi(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"\x1b[1mhello\x1b[0m", "hello"},
		{"\x1b[1m\x1b[31mbold red\x1b[0m", "bold red"},
		{"before\x1b[32mgreen\x1b[0mafter", "beforegreenafter"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := stripAnsi(tt.input); got != tt.want {
			t.Errorf("stripAnsi(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
