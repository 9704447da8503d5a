package plan

import "fmt"

// ReadMode tags the purpose of an IOPlan.
type ReadMode int

const (
	// Sync is a demand read issued on behalf of the application.
	Sync ReadMode = iota
	// ColumnPrefetch speculatively fetches whole column chunks.
	ColumnPrefetch
	// DictionaryPrefetch speculatively fetches dictionary pages only.
	DictionaryPrefetch
)

// String returns the name used in logs and metric labels.
func (m ReadMode) String() string {
	switch m {
	case Sync:
		return "sync"
	case ColumnPrefetch:
		return "column_prefetch"
	case DictionaryPrefetch:
		return "dictionary_prefetch"
	default:
		return fmt.Sprintf("read_mode(%d)", int(m))
	}
}

// IOPlan is a purpose-tagged set of sorted, disjoint byte ranges.
type IOPlan struct {
	Mode   ReadMode
	Ranges []Range
}

// NewIOPlan merges ranges and tags the result with mode.
func NewIOPlan(mode ReadMode, ranges []Range) IOPlan {
	return IOPlan{Mode: mode, Ranges: Merge(ranges)}
}

// IsEmpty reports whether the plan has nothing to fetch.
func (p IOPlan) IsEmpty() bool {
	return len(p.Ranges) == 0
}

// State is the outcome of executing a plan.
//
// A plan starts Pending and moves to either Executed or Skipped exactly once.
type State int

const (
	// Pending means the plan has not been submitted yet.
	Pending State = iota
	// Executed means the plan's ranges were fetched.
	Executed
	// Skipped means nothing was fetched: the plan was empty, disabled or failed.
	Skipped
)

// String returns the name used in logs and metric labels.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executed:
		return "executed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Execution reports what happened to one or more plans.
type Execution struct {
	State  State
	Ranges []Range
}

// SkippedExecution is returned when nothing was fetched.
var SkippedExecution = Execution{State: Skipped}

// ExecutedWith returns an Executed outcome carrying ranges.
func ExecutedWith(ranges []Range) Execution {
	return Execution{State: Executed, Ranges: ranges}
}
