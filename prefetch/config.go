package prefetch

import "fmt"

// Mode selects how eagerly a task prefetches.
type Mode string

const (
	// ModeOff records reads but never prefetches.
	ModeOff Mode = "off"
	// ModeRowGroup prefetches recently read columns of every row group a
	// read touches.
	ModeRowGroup Mode = "row_group"
)

// DefaultColdFileRowGroups is the number of row groups prefetched for a file
// before any read has been observed on it.
const DefaultColdFileRowGroups = 1

// Config drives the decisions of a Task.
type Config struct {
	Mode              Mode
	ColdFileRowGroups int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{Mode: ModeRowGroup, ColdFileRowGroups: DefaultColdFileRowGroups}
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModeRowGroup:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown prefetch mode %q (want %q or %q)", s, ModeOff, ModeRowGroup)
	}
}
