package formatting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NewTable creates a new table with standard styling writing to w
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderTable(w io.Writer, opts Options, data Table) error {
	if len(data.Rows) == 0 {
		_, err := fmt.Fprint(w, emptyMessage(opts, "📋", "No items found"))
		return err
	}

	t := NewTable(w)
	if data.Title != "" {
		t.SetTitle(data.Title)
	}
	header := make(table.Row, 0, len(data.Header))
	for _, h := range data.Header {
		header = append(header, colorize(opts, text.FgHiCyan, h))
	}
	t.AppendHeader(header)

	for _, r := range data.Rows {
		row := make(table.Row, 0, len(r))
		for _, cell := range r {
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	t.Render()

	_, err := fmt.Fprintf(w, "%s %s %s\n",
		colorize(opts, text.FgHiBlue, "Total:"),
		colorize(opts, text.FgHiWhite, fmt.Sprint(len(data.Rows))),
		colorize(opts, text.FgHiBlue, "items"))
	return err
}

// emptyMessage formats empty result messages
func emptyMessage(opts Options, icon, message string) string {
	return fmt.Sprintf("%s %s\n", colorize(opts, text.FgYellow, icon), colorize(opts, text.FgYellow, message))
}

func colorize(opts Options, c text.Color, s string) string {
	if !opts.Color {
		return s
	}
	return c.Sprint(s)
}
