package output

import (
	"fmt"
	"io"
)

// Table is an ordered listing: Columns names the fields of every row, in
// display order.
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

// Append adds a row. Values are matched to Columns by position.
func (t *Table) Append(values ...interface{}) {
	t.Rows = append(t.Rows, values)
}

// Formatter defines the interface for output formatters.
//
// Implementers must provide Format to render a table in the target format
// and SetOutput to change the output destination.
type Formatter interface {
	// Format writes the table in the formatter's specific format
	Format(t Table) error

	// SetOutput changes the output writer
	SetOutput(w io.Writer)
}

// New returns the formatter registered under name: table, json or csv.
func New(name string, w io.Writer) (Formatter, error) {
	switch name {
	case "table":
		return NewTableFormatter(w), nil
	case "json":
		return NewJSONFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, csv)", name)
	}
}
