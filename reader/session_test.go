package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vegasq/pqprefetch/column"
	"github.com/vegasq/pqprefetch/config"
	"github.com/vegasq/pqprefetch/footer"
	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

func TestOpen_Layout(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 2), people(2, 1))

	r := openTest(t, newTestSession(t, dir, nil, nil), "a.parquet")

	if got := r.NumRowGroups(); got != 2 {
		t.Errorf("NumRowGroups() = %d, want 2", got)
	}
	layout := r.Layout()
	if len(layout) != 6 {
		t.Fatalf("Layout() returned %d chunks, want 6", len(layout))
	}

	want := []string{"id", "name", "score", "id", "name", "score"}
	for i, c := range layout {
		if c.Name != want[i] {
			t.Errorf("chunk %d name = %s, want %s", i, c.Name, want[i])
		}
		if c.RowGroup != i/3 {
			t.Errorf("chunk %d row group = %d, want %d", i, c.RowGroup, i/3)
		}
		if i > 0 && c.StartOffset <= layout[i-1].End() {
			t.Errorf("chunk %d overlaps chunk %d", i, i-1)
		}
		if c.End() >= r.Size() {
			t.Errorf("chunk %d ends past the object", i)
		}
	}
	if !layout[1].HasDictionary() {
		t.Errorf("name chunk should have a dictionary page")
	}
	if r.ColdPrefetch().State != plan.Skipped {
		t.Errorf("cold prefetch on a fresh session = %s, want skipped", r.ColdPrefetch().State)
	}
}

func TestOpen_RetriesTruncatedFooter(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 3))

	cfg := config.Default()
	cfg.Footer.TailLength = 16
	reg := prometheus.NewRegistry()
	session := newTestSession(t, dir, cfg, reg)

	r := openTest(t, session, "a.parquet")
	if len(r.Layout()) != 3 {
		t.Errorf("Layout() returned %d chunks, want 3", len(r.Layout()))
	}
	if got := testutil.ToFloat64(session.metrics.FooterParses.WithLabelValues("retried")); got != 1 {
		t.Errorf("retried footer parses = %v, want 1", got)
	}
}

func TestOpen_ParsesFooterOncePerSession(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 3))

	reg := prometheus.NewRegistry()
	session := newTestSession(t, dir, nil, reg)

	first := openTest(t, session, "a.parquet")
	second := openTest(t, session, "a.parquet")

	if got := testutil.ToFloat64(session.metrics.FooterParses.WithLabelValues("ok")); got != 1 {
		t.Errorf("footer parses = %v, want 1", got)
	}
	if len(first.Layout()) != len(second.Layout()) {
		t.Errorf("layouts differ: %d vs %d chunks", len(first.Layout()), len(second.Layout()))
	}

	// the second reader did not parse, its schema comes from a fresh read
	infos, err := second.Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("Schema() returned %d fields, want 3", len(infos))
	}
}

func TestOpen_InvalidFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "garbage.parquet"), []byte("this is not a parquet file at all"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tiny.parquet"), []byte("PAR"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	session := newTestSession(t, dir, nil, nil)

	_, err := session.Open(context.Background(), s3uri.Of("local", "garbage.parquet"))
	var dataErr *footer.DataError
	if !errors.As(err, &dataErr) {
		t.Errorf("Open(garbage) error = %v, want *footer.DataError", err)
	}

	_, err = session.Open(context.Background(), s3uri.Of("local", "tiny.parquet"))
	var callerErr *footer.CallerError
	if !errors.As(err, &callerErr) {
		t.Errorf("Open(tiny) error = %v, want *footer.CallerError", err)
	}

	_, err = session.Open(context.Background(), s3uri.Of("local", "missing.parquet"))
	if err == nil {
		t.Errorf("Open(missing) expected error, got nil")
	}

	// failures are not cached
	if _, ok := session.Store().Mappers(s3uri.Of("local", "garbage.parquet")); ok {
		t.Errorf("store kept mappers for a file that failed to parse")
	}
}

func TestScan_AllColumns(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 2), people(2, 1))

	r := openTest(t, newTestSession(t, dir, nil, nil), "a.parquet")
	result, err := r.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Values != 9 {
		t.Errorf("Scan() decoded %d values, want 9", result.Values)
	}
	if len(result.Columns) != 3 {
		t.Errorf("Scan() columns = %v, want 3 columns", result.Columns)
	}

	if _, err := r.Scan("missing"); err == nil {
		t.Errorf("Scan(missing) expected error, got nil")
	}
}

func TestScan_PrefetchesAcrossFilesWithSameSchema(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 50), people(50, 50))
	writeParquet(t, dir, "b.parquet", people(100, 50), people(150, 50))

	reg := prometheus.NewRegistry()
	session := newTestSession(t, dir, nil, reg)

	a := openTest(t, session, "a.parquet")
	result, err := a.Scan("name")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Values != 100 {
		t.Errorf("Scan() decoded %d values, want 100", result.Values)
	}

	hash := a.Layout()[0].SchemaHash
	recent := append(session.Store().RecentColumns(hash), session.Store().RecentDictionaries(hash)...)
	if len(recent) == 0 || recent[0] != "name" {
		t.Fatalf("recent columns after scanning name = %v", recent)
	}
	for _, name := range recent {
		if name != "name" {
			t.Errorf("unexpected recent column %s", name)
		}
	}

	b := openTest(t, session, "b.parquet")
	cold := b.ColdPrefetch()
	if cold.State != plan.Executed {
		t.Fatalf("cold prefetch of b = %s, want executed", cold.State)
	}

	var nameRG0 column.Metadata
	for _, c := range b.Layout() {
		if c.Name == "name" && c.RowGroup == 0 {
			nameRG0 = c
		}
	}
	if len(cold.Ranges) == 0 {
		t.Fatalf("cold prefetch fetched no ranges")
	}
	for _, rg := range cold.Ranges {
		if !nameRG0.ColumnRange().Contains(rg) {
			t.Errorf("cold prefetch range %s outside name chunk %s", rg, nameRG0.ColumnRange())
		}
	}

	if _, err := b.Scan("name"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if b.Stats().Hits == 0 {
		t.Errorf("no demand read of b was served from prefetched bytes")
	}
}

func TestScan_ModeOffNeverPrefetches(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, dir, "a.parquet", people(0, 10), people(10, 10))
	writeParquet(t, dir, "b.parquet", people(20, 10), people(30, 10))

	cfg := config.Default()
	cfg.Prefetch.Mode = "off"
	reg := prometheus.NewRegistry()
	session := newTestSession(t, dir, cfg, reg)

	a := openTest(t, session, "a.parquet")
	if _, err := a.Scan("id"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	hash := a.Layout()[0].SchemaHash
	if len(session.Store().RecentColumns(hash))+len(session.Store().RecentDictionaries(hash)) == 0 {
		t.Errorf("reads should still be recorded when prefetching is off")
	}

	b := openTest(t, session, "b.parquet")
	if b.ColdPrefetch().State != plan.Skipped {
		t.Errorf("cold prefetch with mode off = %s, want skipped", b.ColdPrefetch().State)
	}
	if got := testutil.ToFloat64(session.prefetchMetrics.Plans.WithLabelValues("column_prefetch", "executed")); got != 0 {
		t.Errorf("executed column plans = %v, want 0", got)
	}
}
