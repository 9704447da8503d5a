package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/parquet-go"

	"github.com/vegasq/pqprefetch/config"
	"github.com/vegasq/pqprefetch/physical"
	"github.com/vegasq/pqprefetch/s3uri"
)

// writeParquet writes one row group per element of groups into dir/name.
func writeParquet[T any](t *testing.T, dir, name string, groups ...[]T) {
	t.Helper()

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	writer := parquet.NewGenericWriter[T](f)
	for i, rows := range groups {
		if _, err := writer.Write(rows); err != nil {
			t.Fatalf("failed to write test data: %v", err)
		}
		if i < len(groups)-1 {
			if err := writer.Flush(); err != nil {
				t.Fatalf("failed to flush row group: %v", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
}

func newTestSession(t *testing.T, dir string, cfg *config.Config, reg prometheus.Registerer) *Session {
	t.Helper()

	session, err := NewSession(cfg, physical.NewFileFetcher(dir), nil, reg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func openTest(t *testing.T, session *Session, name string) *Reader {
	t.Helper()

	r, err := session.Open(context.Background(), s3uri.Of("local", name))
	if err != nil {
		t.Fatalf("Open(%s) error = %v", name, err)
	}
	return r
}

type person struct {
	ID    int64  `parquet:"id"`
	Name  string `parquet:"name,dict"`
	Score int32  `parquet:"score"`
}

func people(from, n int) []person {
	rows := make([]person, n)
	for i := range rows {
		id := int64(from + i)
		rows[i] = person{ID: id, Name: []string{"alice", "bob", "carol"}[i%3], Score: int32(id * 10)}
	}
	return rows
}
