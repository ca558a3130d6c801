package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultTableWidth   = 100
	defaultMinLastWidth = 24
)

// TableOptions describes a left-aligned table whose last column wraps to
// the terminal width.
type TableOptions struct {
	Title        string
	Headers      []string
	Rows         [][]string
	EmptyText    string
	DefaultWidth int
	MinLastWidth int
}

func PrintTable(out io.Writer, opts TableOptions) {
	if out == nil {
		out = os.Stdout
	}

	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%d)", title, len(opts.Rows)))
	}
	if len(opts.Rows) == 0 {
		emptyText := strings.TrimSpace(opts.EmptyText)
		if emptyText == "" {
			emptyText = "No entries."
		}
		fmt.Fprintln(out, Warn(emptyText))
		return
	}

	cols := len(opts.Headers)
	if cols == 0 {
		return
	}
	widths := make([]int, cols)
	for i, h := range opts.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range opts.Rows {
		for i := 0; i < cols-1 && i < len(row); i++ {
			if w := utf8.RuneCountInString(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	prefix := 0
	for _, w := range widths[:cols-1] {
		prefix += w + 2
	}
	widths[cols-1] = lastColumnWidth(out, prefix, opts.DefaultWidth, opts.MinLastWidth)

	header := make([]string, cols)
	rule := make([]string, cols)
	for i, h := range opts.Headers {
		header[i] = Key(padRightRunes(h, widths[i]))
		rule[i] = Dim(strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(header, "  "), " "))
	fmt.Fprintln(out, strings.Join(rule, "  "))

	for _, row := range opts.Rows {
		cells := make([]string, cols)
		copy(cells, row)
		lines := wrapTextRunes(cells[cols-1], widths[cols-1])
		lead := make([]string, 0, cols-1)
		for i := 0; i < cols-1; i++ {
			cell := padRightRunes(cells[i], widths[i])
			if i == 0 {
				cell = Success(cell)
			}
			lead = append(lead, cell)
		}
		fmt.Fprintln(out, strings.Join(append(lead, lines[0]), "  "))
		for _, line := range lines[1:] {
			fmt.Fprintf(out, "%s%s\n", strings.Repeat(" ", prefix), line)
		}
	}
}

func lastColumnWidth(out io.Writer, prefix, defaultWidth, minWidth int) int {
	if defaultWidth <= 0 {
		defaultWidth = defaultTableWidth
	}
	if minWidth <= 0 {
		minWidth = defaultMinLastWidth
	}
	width := defaultWidth
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if terminalWidth, _, err := term.GetSize(int(file.Fd())); err == nil && terminalWidth > 0 {
			width = terminalWidth
		}
	}
	if w := width - prefix; w > minWidth {
		return w
	}
	return minWidth
}

func padRightRunes(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func wrapTextRunes(text string, width int) []string {
	text = strings.TrimSpace(text)
	if text == "" || width <= 0 {
		return []string{text}
	}

	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
