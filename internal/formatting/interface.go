// Package formatting renders tabular harness output (suite listings, result
// summaries) as a table, JSON or YAML.
package formatting

import (
	"fmt"
	"io"
	"strings"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(name)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", name)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Color  bool // Enable colored output
}

// Table is a headed list of rows. Every row has one cell per header.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Records returns the rows as header-keyed maps, in row order.
func (t Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				rec[strings.ToLower(h)] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Render writes data to w in the format of opts.
func Render(w io.Writer, opts Options, data Table) error {
	switch opts.Format {
	case FormatJSON:
		_, err := fmt.Fprintln(w, PrettyJSON(data.Records()))
		return err
	case FormatYAML:
		return renderYAML(w, data)
	default:
		return renderTable(w, opts, data)
	}
}
