package prefetch

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/vegasq/pqprefetch/column"
	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
	"github.com/vegasq/pqprefetch/store"
)

// PhysicalIO fetches the ranges of a plan. Execute blocks until the bytes
// are available or the fetch failed.
type PhysicalIO interface {
	Execute(p plan.IOPlan) (plan.Execution, error)
}

// Task learns which columns of one object are read and prefetches them
// ahead of demand reads.
//
// A Task runs inline with the caller and adds no locking of its own; the
// shared state lives in the Store.
type Task struct {
	id       string
	uri      s3uri.URI
	cfg      Config
	physical PhysicalIO
	store    *store.Store
	logger   log.Logger
	metrics  *Metrics
}

// NewTask binds a task to uri. A nil logger discards output and nil metrics
// record nothing.
func NewTask(uri s3uri.URI, cfg Config, physical PhysicalIO, st *store.Store, logger log.Logger, metrics *Metrics) *Task {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.ColdFileRowGroups <= 0 {
		cfg.ColdFileRowGroups = DefaultColdFileRowGroups
	}

	id := uuid.NewString()
	return &Task{
		id:       id,
		uri:      uri,
		cfg:      cfg,
		physical: physical,
		store:    st,
		logger:   log.With(logger, "task", id, "uri", uri.String()),
		metrics:  metrics,
	}
}

// ID identifies the task in logs.
func (t *Task) ID() string {
	return t.id
}

// URI returns the object the task is bound to.
func (t *Task) URI() s3uri.URI {
	return t.uri
}

// RecordRead records the column chunks touched by a read of length bytes at
// start and returns them in offset order. Nothing is recorded until the
// object's layout is in the store.
//
// In row group mode every row group touched by the read is then prefetched.
func (t *Task) RecordRead(start, length int64) []column.Metadata {
	m, ok := t.store.Mappers(t.uri)
	if !ok || length <= 0 {
		return nil
	}

	chunks := m.Overlapping(start, length)
	for _, c := range chunks {
		if isDictionaryRead(c, start, length) {
			t.store.AddRecentDictionary(c)
			t.metrics.recorded("dictionary")
		} else {
			t.store.AddRecentColumn(c)
			t.metrics.recorded("column")
		}
	}

	if t.cfg.Mode == ModeRowGroup {
		seen := make(map[int]bool, 1)
		for _, c := range chunks {
			if seen[c.RowGroup] {
				continue
			}
			seen[c.RowGroup] = true
			t.PrefetchRecent(m, []int{c.RowGroup}, false)
		}
	}

	return chunks
}

// isDictionaryRead reports whether a read is aimed at the dictionary page of
// c: it covers the dictionary offset and stops before the data pages.
func isDictionaryRead(c column.Metadata, start, length int64) bool {
	if !c.HasDictionary() {
		return false
	}
	end := start + length
	return start <= c.DictionaryOffset && end > c.DictionaryOffset && end <= c.DataPageOffset
}

// PrefetchRecent fetches the recently read dictionaries and columns of the
// given row groups. Each row group is prefetched at most once per purpose.
//
// Cold files, on which no read has been observed yet, only consider the
// first configured number of row groups. Fetch failures are logged and
// yield a skipped plan; they are never returned.
func (t *Task) PrefetchRecent(m *column.Mappers, rowGroups []int, isColdFile bool) plan.Execution {
	if t.cfg.Mode == ModeOff || m.IsEmpty() {
		return plan.SkippedExecution
	}

	eligible := t.eligible(m, rowGroups, isColdFile)
	if len(eligible) == 0 {
		return plan.SkippedExecution
	}

	fp := m.SchemaHash()
	dictionaries := t.store.RecentDictionaries(fp)
	columns := t.store.RecentColumns(fp)
	if len(dictionaries) == 0 && len(columns) == 0 {
		return plan.SkippedExecution
	}

	plans := []plan.IOPlan{
		plan.NewIOPlan(plan.DictionaryPrefetch, t.collect(m, eligible, dictionaries, dictionaryPurpose)),
		plan.NewIOPlan(plan.ColumnPrefetch, t.collect(m, eligible, columns, columnPurpose)),
	}

	var (
		fetched  []plan.Range
		executed bool
	)
	for _, p := range plans {
		if p.IsEmpty() {
			continue
		}
		if ranges, ok := t.execute(p); ok {
			executed = true
			fetched = append(fetched, ranges...)
		}
	}

	if !executed {
		return plan.SkippedExecution
	}
	return plan.ExecutedWith(fetched)
}

// eligible returns the distinct row groups that exist in m, capped for cold
// files.
func (t *Task) eligible(m *column.Mappers, rowGroups []int, isColdFile bool) []int {
	seen := make(map[int]bool, len(rowGroups))
	out := make([]int, 0, len(rowGroups))
	for _, rg := range rowGroups {
		if rg < 0 || rg >= m.NumRowGroups() || seen[rg] {
			continue
		}
		seen[rg] = true
		out = append(out, rg)
	}
	if isColdFile && len(out) > t.cfg.ColdFileRowGroups {
		out = out[:t.cfg.ColdFileRowGroups]
	}
	return out
}

// purpose describes one kind of prefetch: which flag guards it and which
// bytes of a chunk it wants.
type purpose struct {
	isDone func(s *store.Store, uri s3uri.URI, rg int) bool
	mark   func(s *store.Store, uri s3uri.URI, rg int) bool
	ranges func(c column.Metadata) (plan.Range, bool)
}

var dictionaryPurpose = purpose{
	isDone: (*store.Store).IsDictionaryPrefetched,
	mark:   (*store.Store).MarkDictionaryPrefetched,
	ranges: column.Metadata.DictionaryRange,
}

var columnPurpose = purpose{
	isDone: (*store.Store).IsColumnsPrefetched,
	mark:   (*store.Store).MarkColumnsPrefetched,
	ranges: func(c column.Metadata) (plan.Range, bool) { return c.ColumnRange(), true },
}

// collect gathers the ranges of names in every row group not yet prefetched
// for purpose p. A row group's flag is claimed only when it contributes
// ranges, and only by one caller.
func (t *Task) collect(m *column.Mappers, rowGroups []int, names []string, p purpose) []plan.Range {
	if len(names) == 0 {
		return nil
	}

	var out []plan.Range
	for _, rg := range rowGroups {
		if p.isDone(t.store, t.uri, rg) {
			continue
		}

		var ranges []plan.Range
		for _, name := range names {
			c, ok := m.ForRowGroup(name, rg)
			if !ok {
				continue
			}
			if r, ok := p.ranges(c); ok {
				ranges = append(ranges, r)
			}
		}
		if len(ranges) == 0 || !p.mark(t.store, t.uri, rg) {
			continue
		}
		out = append(out, ranges...)
	}
	return out
}

// execute submits p and reports the ranges fetched. Failures are swallowed.
func (t *Task) execute(p plan.IOPlan) ([]plan.Range, bool) {
	mode := p.Mode.String()

	exec, err := t.physical.Execute(p)
	if err != nil {
		level.Warn(t.logger).Log("msg", "prefetch failed, skipping plan", "mode", mode, "ranges", len(p.Ranges), "err", err)
		t.metrics.planFailed(mode)
		t.metrics.planDone(mode, plan.Skipped.String(), 0)
		return nil, false
	}

	if exec.State != plan.Executed {
		level.Debug(t.logger).Log("msg", "prefetch not executed", "mode", mode, "state", exec.State)
		t.metrics.planDone(mode, plan.Skipped.String(), 0)
		return nil, false
	}

	fetched := exec.Ranges
	if len(fetched) == 0 {
		fetched = p.Ranges
	}
	level.Debug(t.logger).Log("msg", "prefetch executed", "mode", mode, "ranges", len(fetched), "bytes", plan.TotalLength(fetched))
	t.metrics.planDone(mode, plan.Executed.String(), plan.TotalLength(fetched))
	return fetched, true
}
