// Package physical fetches byte ranges of objects and keeps recently fetched
// ranges in memory so that demand reads covered by a prefetch are served
// without another round trip.
package physical

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

// Fetcher reads byte ranges of objects.
type Fetcher interface {
	// Fetch returns exactly r.Length() bytes starting at r.Start.
	Fetch(ctx context.Context, uri s3uri.URI, r plan.Range) ([]byte, error)
	// Size returns the length of the object in bytes.
	Size(ctx context.Context, uri s3uri.URI) (int64, error)
}

// FileFetcher serves objects from the local filesystem. The key of a URI is
// a path relative to Root; the bucket is ignored.
type FileFetcher struct {
	Root string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileFetcher returns a fetcher reading files below root. An empty root
// resolves keys against the working directory.
func NewFileFetcher(root string) *FileFetcher {
	return &FileFetcher{Root: root, files: make(map[string]*os.File)}
}

func (f *FileFetcher) open(uri s3uri.URI) (*os.File, error) {
	path := uri.Key
	if f.Root != "" {
		path = filepath.Join(f.Root, uri.Key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[path]; ok {
		return file, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	f.files[path] = file
	return file, nil
}

// Fetch reads r from the file backing uri.
func (f *FileFetcher) Fetch(ctx context.Context, uri s3uri.URI, r plan.Range) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := f.open(uri)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, r.Length())
	n, err := file.ReadAt(buf, r.Start)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, fmt.Errorf("failed to read %s: %w", r, err)
	}
	return buf, nil
}

// Size returns the size of the file backing uri.
func (f *FileFetcher) Size(_ context.Context, uri s3uri.URI) (int64, error) {
	file, err := f.open(uri)
	if err != nil {
		return 0, err
	}
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", file.Name(), err)
	}
	return info.Size(), nil
}

// Close closes every file opened by the fetcher.
func (f *FileFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for path, file := range f.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.files, path)
	}
	return firstErr
}
