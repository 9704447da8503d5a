package reader

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/format"

	"github.com/vegasq/pqprefetch/column"
	"github.com/vegasq/pqprefetch/physical"
	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/prefetch"
	"github.com/vegasq/pqprefetch/s3uri"
)

// Reader reads one object, reporting every read to its prefetching task.
//
// Reader implements io.ReaderAt, so it can back any Parquet decoder. Reads
// are recorded before they are served; a read that triggers a row group
// prefetch is then answered from the prefetched bytes.
type Reader struct {
	uri     s3uri.URI
	obj     *physical.ObjectIO
	task    *prefetch.Task
	mappers *column.Mappers
	logger  log.Logger
	tail    int64
	cold    plan.Execution

	mu   sync.Mutex
	meta *format.FileMetaData
}

// URI returns the object being read.
func (r *Reader) URI() s3uri.URI {
	return r.uri
}

// Size returns the length of the object in bytes.
func (r *Reader) Size() int64 {
	return r.obj.Size()
}

// NumRowGroups returns the number of row groups in the object.
func (r *Reader) NumRowGroups() int {
	return r.mappers.NumRowGroups()
}

// Layout returns every column chunk of the object in offset order.
func (r *Reader) Layout() []column.Metadata {
	return r.mappers.Chunks()
}

// ColdPrefetch returns the outcome of the prefetch issued when the reader
// was opened.
func (r *Reader) ColdPrefetch() plan.Execution {
	return r.cold
}

// Task returns the prefetching task bound to the object.
func (r *Reader) Task() *prefetch.Task {
	return r.task
}

// Stats returns how demand reads were served.
func (r *Reader) Stats() physical.Stats {
	return r.obj.Stats()
}

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.task.RecordRead(off, int64(len(p)))
	return r.obj.ReadAt(p, off)
}

// Metadata returns the decoded footer, reading it again if the layout came
// from the store.
func (r *Reader) Metadata() (*format.FileMetaData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.meta == nil {
		meta, err := r.readFooter(nil)
		if err != nil {
			return nil, err
		}
		r.meta = meta
	}
	return r.meta, nil
}

// Schema returns the leaf columns of the object.
func (r *Reader) Schema() ([]SchemaInfo, error) {
	meta, err := r.Metadata()
	if err != nil {
		return nil, err
	}
	return SchemaFromMetadata(meta)
}

// ScanResult counts what Scan decoded.
type ScanResult struct {
	Columns []string `json:"columns"`
	Pages   int64    `json:"pages"`
	Values  int64    `json:"values"`
}

// Scan decodes every page of the named columns, row group by row group,
// the way a query engine projecting those columns would. All columns are
// scanned when names is empty.
//
// Returns an error if a column does not exist or a page fails to decode.
func (r *Reader) Scan(names ...string) (ScanResult, error) {
	f, err := parquet.OpenFile(r, r.Size())
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to open parquet file: %w", err)
	}

	indexes, err := columnIndexes(f.Metadata(), names)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{Columns: names}
	if len(names) == 0 && len(f.Metadata().RowGroups) > 0 {
		result.Columns = nil
		for _, cc := range f.Metadata().RowGroups[0].Columns {
			result.Columns = append(result.Columns, strings.Join(cc.MetaData.PathInSchema, "."))
		}
	}

	for _, rg := range f.RowGroups() {
		chunks := rg.ColumnChunks()
		for _, idx := range indexes {
			pages, values, err := readPages(chunks[idx])
			if err != nil {
				return result, fmt.Errorf("failed to read column %d: %w", idx, err)
			}
			result.Pages += pages
			result.Values += values
		}
	}
	return result, nil
}

// columnIndexes maps dot-joined column names to leaf column indexes.
func columnIndexes(meta *format.FileMetaData, names []string) ([]int, error) {
	if len(meta.RowGroups) == 0 {
		return nil, nil
	}

	byName := make(map[string]int)
	var all []int
	for i, cc := range meta.RowGroups[0].Columns {
		byName[strings.Join(cc.MetaData.PathInSchema, ".")] = i
		all = append(all, i)
	}
	if len(names) == 0 {
		return all, nil
	}

	indexes := make([]int, 0, len(names))
	for _, name := range names {
		idx, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func readPages(chunk parquet.ColumnChunk) (pages, values int64, err error) {
	reader := chunk.Pages()
	defer func() { _ = reader.Close() }()

	for {
		page, err := reader.ReadPage()
		if err != nil {
			// Use errors.Is for proper EOF detection
			if errors.Is(err, io.EOF) {
				return pages, values, nil
			}
			return pages, values, err
		}
		pages++
		values += page.NumValues()
	}
}

// Close is a no-op kept so Reader can be used where an io.Closer is
// expected. Fetcher resources are owned by the Session.
func (r *Reader) Close() error {
	return nil
}
