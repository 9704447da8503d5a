package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vegasq/pqprefetch/output"
	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/reader"
)

// withReaders opens every location in order through one session and calls
// fn for each reader. The session is closed before returning.
func withReaders(ctx context.Context, e *env, locations []string, reg prometheus.Registerer, fn func(r *reader.Reader) error) error {
	uris, fetcher, err := resolve(locations)
	if err != nil {
		return err
	}

	sess, err := reader.NewSession(e.cfg, fetcher, e.logger, reg)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	for _, uri := range uris {
		r, err := sess.Open(ctx, uri)
		if err != nil {
			return fmt.Errorf("%s: %w", displayName(uri), err)
		}
		if err := fn(r); err != nil {
			return fmt.Errorf("%s: %w", displayName(uri), err)
		}
		_ = r.Close()
	}
	return nil
}

func runLayout(ctx context.Context, e *env, locations []string) error {
	t := output.Table{Columns: []string{"file", "row_group", "column", "start", "end", "size", "dictionary"}}
	err := withReaders(ctx, e, locations, nil, func(r *reader.Reader) error {
		for _, c := range r.Layout() {
			dict := ""
			if d, ok := c.DictionaryRange(); ok {
				dict = d.String()
			}
			t.Append(displayName(r.URI()), c.RowGroup, c.Name, c.StartOffset, c.End(), c.CompressedSize, dict)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.formatter.Format(t)
}

func runSchema(ctx context.Context, e *env, locations []string) error {
	multi := len(locations) > 1
	t := output.Table{Columns: []string{"name", "type", "physical_type", "logical_type", "required", "optional", "repeated"}}
	if multi {
		t.Columns = append([]string{"file"}, t.Columns...)
	}

	err := withReaders(ctx, e, locations, nil, func(r *reader.Reader) error {
		schema, err := r.Schema()
		if err != nil {
			return err
		}
		for _, s := range schema {
			row := []interface{}{s.Name, s.Type, s.PhysicalType, s.LogicalType, s.Required, s.Optional, s.Repeated}
			if multi {
				row = append([]interface{}{displayName(r.URI())}, row...)
			}
			t.Append(row...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.formatter.Format(t)
}

func runSimulate(ctx context.Context, e *env, locations []string) error {
	var columns []string
	if e.opts.columns != "" {
		for _, c := range strings.Split(e.opts.columns, ",") {
			if c = strings.TrimSpace(c); c != "" {
				columns = append(columns, c)
			}
		}
	}

	var reg *prometheus.Registry
	if e.opts.metrics {
		reg = prometheus.NewRegistry()
	}

	t := output.Table{Columns: []string{
		"file", "row_groups", "cold_prefetch", "cold_bytes", "pages", "values", "hits", "misses", "fetched_bytes",
	}}
	err := withReaders(ctx, e, locations, registerer(reg), func(r *reader.Reader) error {
		cold := r.ColdPrefetch()
		res, err := r.Scan(columns...)
		if err != nil {
			return err
		}
		stats := r.Stats()
		level.Info(e.logger).Log("msg", "scanned", "uri", r.URI(), "cold_prefetch", cold.State, "values", res.Values)
		t.Append(displayName(r.URI()), r.NumRowGroups(), cold.State.String(), plan.TotalLength(cold.Ranges),
			res.Pages, res.Values, stats.Hits, stats.Misses, stats.FetchedBytes)
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.formatter.Format(t); err != nil {
		return err
	}

	if reg == nil {
		return nil
	}
	mt, err := metricsTable(reg)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout)
	return e.formatter.Format(mt)
}

// registerer avoids handing a typed nil registry to the session.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// metricsTable lists every counter gathered from reg.
func metricsTable(reg *prometheus.Registry) (output.Table, error) {
	t := output.Table{Columns: []string{"metric", "labels", "value"}}
	families, err := reg.Gather()
	if err != nil {
		return t, fmt.Errorf("failed to gather metrics: %w", err)
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			t.Append(mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return t, nil
}
