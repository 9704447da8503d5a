package physical

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

var testURI = s3uri.Of("bucket", "data.parquet")

func objectBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type countingFetcher struct {
	data []byte

	mu       sync.Mutex
	fetches  []plan.Range
	failures int
}

func (f *countingFetcher) Fetch(_ context.Context, _ s3uri.URI, r plan.Range) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, r)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	return append([]byte(nil), f.data[r.Start:r.End+1]...), nil
}

func (f *countingFetcher) Size(context.Context, s3uri.URI) (int64, error) {
	return int64(len(f.data)), nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func newObjectIO(t *testing.T, f Fetcher, cfg Config) *ObjectIO {
	t.Helper()
	o, err := NewObjectIO(context.Background(), testURI, f, cfg, nil)
	require.NoError(t, err)
	return o
}

func TestExecuteServesLaterDemandReads(t *testing.T) {
	f := &countingFetcher{data: objectBytes(4096)}
	o := newObjectIO(t, f, DefaultConfig())

	p := plan.NewIOPlan(plan.ColumnPrefetch, []plan.Range{{Start: 100, End: 599}, {Start: 1000, End: 1999}})
	exec, err := o.Execute(p)
	require.NoError(t, err)
	require.Equal(t, plan.Executed, exec.State)
	require.Equal(t, p.Ranges, exec.Ranges)
	require.Equal(t, 2, f.count())

	buf := make([]byte, 50)
	n, err := o.ReadAt(buf, 1200)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	require.Equal(t, f.data[1200:1250], buf)
	require.Equal(t, 2, f.count())

	// not covered by a single cached range
	n, err = o.ReadAt(buf, 580)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	require.Equal(t, f.data[580:630], buf)
	require.Equal(t, 3, f.count())

	stats := o.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(500+1000+50), stats.FetchedBytes)
}

func TestExecuteSkipsCachedRanges(t *testing.T) {
	f := &countingFetcher{data: objectBytes(1024)}
	o := newObjectIO(t, f, DefaultConfig())

	p := plan.NewIOPlan(plan.DictionaryPrefetch, []plan.Range{{Start: 0, End: 99}})
	_, err := o.Execute(p)
	require.NoError(t, err)
	_, err = o.Execute(p)
	require.NoError(t, err)
	require.Equal(t, 1, f.count())
}

func TestExecuteFailureIsNotRetried(t *testing.T) {
	f := &countingFetcher{data: objectBytes(1024), failures: 10}
	o := newObjectIO(t, f, Config{DemandRetries: 3})

	exec, err := o.Execute(plan.NewIOPlan(plan.ColumnPrefetch, []plan.Range{{Start: 0, End: 99}}))
	require.Error(t, err)
	require.Equal(t, plan.Skipped, exec.State)

	var ioErr *TransientIOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, plan.Range{Start: 0, End: 99}, ioErr.Range)
	require.Equal(t, 1, f.count())
}

func TestExecuteRangePastEnd(t *testing.T) {
	f := &countingFetcher{data: objectBytes(100)}
	o := newObjectIO(t, f, DefaultConfig())

	_, err := o.Execute(plan.NewIOPlan(plan.ColumnPrefetch, []plan.Range{{Start: 200, End: 299}}))
	require.Error(t, err)
	require.Zero(t, f.count())

	exec, err := o.Execute(plan.NewIOPlan(plan.ColumnPrefetch, []plan.Range{{Start: 50, End: 299}}))
	require.NoError(t, err)
	require.Equal(t, plan.Executed, exec.State)
	require.Equal(t, []plan.Range{{Start: 50, End: 99}}, exec.Ranges)
	require.Equal(t, []plan.Range{{Start: 50, End: 99}}, f.fetches)
}

func TestReadAtRetriesDemandReads(t *testing.T) {
	f := &countingFetcher{data: objectBytes(1024), failures: 2}
	o := newObjectIO(t, f, Config{DemandRetries: 2, RequestTimeout: time.Second})

	buf := make([]byte, 10)
	n, err := o.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, 3, f.count())

	f.failures = 5
	_, err = o.ReadAt(buf, 500)
	require.Error(t, err)
}

func TestReadAtEndOfObject(t *testing.T) {
	f := &countingFetcher{data: objectBytes(100)}
	o := newObjectIO(t, f, DefaultConfig())

	buf := make([]byte, 30)
	n, err := o.ReadAt(buf, 90)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 10, n)
	require.Equal(t, f.data[90:], buf[:n])

	n, err = o.ReadAt(buf, 100)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, n)

	_, err = o.ReadAt(buf, -1)
	require.Error(t, err)
}

func TestReadTail(t *testing.T) {
	f := &countingFetcher{data: objectBytes(100)}
	o := newObjectIO(t, f, DefaultConfig())

	tail, err := o.ReadTail(16)
	require.NoError(t, err)
	require.Equal(t, f.data[84:], tail)

	tail, err = o.ReadTail(1 << 20)
	require.NoError(t, err)
	require.Equal(t, f.data, tail)
	require.Equal(t, int64(100), o.Size())
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	data := objectBytes(256)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.parquet"), data, 0o644))

	f := NewFileFetcher(dir)
	defer func() { _ = f.Close() }()
	uri := s3uri.Of("local", "x.parquet")

	size, err := f.Size(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, int64(256), size)

	got, err := f.Fetch(context.Background(), uri, plan.Range{Start: 10, End: 19})
	require.NoError(t, err)
	require.Equal(t, data[10:20], got)

	got, err = f.Fetch(context.Background(), uri, plan.Range{Start: 200, End: 255})
	require.NoError(t, err)
	require.Equal(t, data[200:], got)

	_, err = f.Fetch(context.Background(), uri, plan.Range{Start: 200, End: 300})
	require.Error(t, err)

	_, err = f.Size(context.Background(), s3uri.Of("local", "missing.parquet"))
	require.Error(t, err)
}

type fakeS3 struct {
	data      []byte
	shortBody bool

	mu     sync.Mutex
	ranges []string
}

func (s *fakeS3) GetObjectWithContext(_ aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	s.mu.Lock()
	s.ranges = append(s.ranges, aws.StringValue(input.Range))
	s.mu.Unlock()

	var start, end int64
	if _, err := fmt.Sscanf(aws.StringValue(input.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	body := s.data[start : end+1]
	length := int64(len(body))
	if s.shortBody {
		length--
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(length),
	}, nil
}

func (s *fakeS3) HeadObjectWithContext(_ aws.Context, input *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if aws.StringValue(input.Key) != testURI.Key {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(s.data)))}, nil
}

func TestRangeHeader(t *testing.T) {
	require.Equal(t, "bytes=0-99", rangeHeader(plan.Range{Start: 0, End: 99}))
	require.Equal(t, "bytes=100-100", rangeHeader(plan.Range{Start: 100, End: 100}))
}

func TestS3Fetcher(t *testing.T) {
	svc := &fakeS3{data: objectBytes(1000)}
	f := NewS3Fetcher(svc)

	size, err := f.Size(context.Background(), testURI)
	require.NoError(t, err)
	require.Equal(t, int64(1000), size)

	got, err := f.Fetch(context.Background(), testURI, plan.Range{Start: 100, End: 599})
	require.NoError(t, err)
	require.Equal(t, svc.data[100:600], got)
	require.Equal(t, []string{"bytes=100-599"}, svc.ranges)

	_, err = f.Size(context.Background(), s3uri.Of("bucket", "other"))
	require.Error(t, err)

	svc.shortBody = true
	_, err = f.Fetch(context.Background(), testURI, plan.Range{Start: 0, End: 9})
	require.Error(t, err)
}

func TestS3ObjectIO(t *testing.T) {
	svc := &fakeS3{data: objectBytes(1000)}
	o := newObjectIO(t, NewS3Fetcher(svc), DefaultConfig())

	_, err := o.Execute(plan.NewIOPlan(plan.ColumnPrefetch, []plan.Range{{Start: 0, End: 499}}))
	require.NoError(t, err)

	buf := make([]byte, 100)
	_, err = o.ReadAt(buf, 200)
	require.NoError(t, err)
	require.Equal(t, svc.data[200:300], buf)
	require.Equal(t, []string{"bytes=0-499"}, svc.ranges)
}
