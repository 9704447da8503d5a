// Package output renders tabular listings (column chunk layouts, schemas,
// prefetch reports) in various output formats.
//
// # Supported Formats
//
//   - table: aligned text table for terminals
//   - json: JSON Lines, one object per row (suitable for streaming)
//   - csv: comma-separated values with header row
//
// # Basic Usage
//
//	var t output.Table
//	t.Columns = []string{"name", "row_group", "start"}
//	t.Append("id", 0, int64(4))
//
//	formatter, err := output.New("csv", os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := formatter.Format(t); err != nil {
//	    log.Fatal(err)
//	}
//
// # Type Handling
//
// Strings, numbers and booleans are printed directly; fmt.Stringer values
// use their String method. The JSON formatter keeps numbers as numbers.
// CSV and table output prefix values starting with a formula character
// with a quote, guarding against spreadsheet formula injection.
package output
