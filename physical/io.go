package physical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

// Config bounds the resources used by an ObjectIO.
type Config struct {
	CacheEntries   int
	MaxConcurrency int
	RequestTimeout time.Duration
	// DemandRetries is the number of extra attempts made for a failed
	// demand read. Prefetch plans are never retried.
	DemandRetries int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		CacheEntries:   1024,
		MaxConcurrency: 8,
		RequestTimeout: 30 * time.Second,
		DemandRetries:  2,
	}
}

// Stats counts how demand reads were served.
type Stats struct {
	Hits         int64
	Misses       int64
	FetchedBytes int64
}

// ObjectIO reads one object through a Fetcher, caching fetched ranges.
//
// Execute fetches the ranges of a plan into the cache; ReadAt serves demand
// reads from the cache when a cached range covers them. ObjectIO is safe
// for concurrent use.
type ObjectIO struct {
	uri     s3uri.URI
	fetcher Fetcher
	cfg     Config
	size    int64
	cache   *lru.Cache[plan.Range, []byte]
	logger  log.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	fetched atomic.Int64
}

// NewObjectIO looks up the size of uri and returns an ObjectIO for it.
func NewObjectIO(ctx context.Context, uri s3uri.URI, fetcher Fetcher, cfg Config, logger log.Logger) (*ObjectIO, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	defaults := DefaultConfig()
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = defaults.CacheEntries
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.DemandRetries < 0 {
		cfg.DemandRetries = 0
	}

	cache, err := lru.New[plan.Range, []byte](cfg.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("create range cache: %w", err)
	}

	size, err := fetcher.Size(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to get size of %s: %w", uri, err)
	}

	return &ObjectIO{
		uri:     uri,
		fetcher: fetcher,
		cfg:     cfg,
		size:    size,
		cache:   cache,
		logger:  log.With(logger, "uri", uri.String()),
	}, nil
}

// Size returns the length of the object.
func (o *ObjectIO) Size() int64 {
	return o.size
}

// Stats returns the demand read counters.
func (o *ObjectIO) Stats() Stats {
	return Stats{
		Hits:         o.hits.Load(),
		Misses:       o.misses.Load(),
		FetchedBytes: o.fetched.Load(),
	}
}

// Execute fetches every range of p not already cached, at most
// MaxConcurrency at a time. Ranges are clamped to the object and reported
// as clamped. The first failure is returned and the plan is reported
// skipped.
func (o *ObjectIO) Execute(p plan.IOPlan) (plan.Execution, error) {
	if p.IsEmpty() {
		return plan.SkippedExecution, nil
	}

	clamped := make([]plan.Range, 0, len(p.Ranges))
	pending := make([]plan.Range, 0, len(p.Ranges))
	for _, r := range p.Ranges {
		r, err := o.clamp(r)
		if err != nil {
			return plan.SkippedExecution, err
		}
		clamped = append(clamped, r)
		if _, ok := o.lookup(r, false); !ok {
			pending = append(pending, r)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, r := range pending {
		r := r
		g.Go(func() error {
			_, err := o.fetch(r)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return plan.SkippedExecution, err
	}

	level.Debug(o.logger).Log("msg", "plan executed", "mode", p.Mode, "ranges", len(clamped), "bytes", plan.TotalLength(clamped))
	return plan.ExecutedWith(clamped), nil
}

// ReadAt implements io.ReaderAt.
func (o *ObjectIO) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= o.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= o.size {
		end = o.size - 1
	}
	r := plan.Range{Start: off, End: end}

	data, ok := o.lookup(r, true)
	if ok {
		o.hits.Add(1)
	} else {
		o.misses.Add(1)
		var err error
		if data, err = o.fetchWithRetry(r); err != nil {
			return 0, err
		}
	}

	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadTail returns the last n bytes of the object, or the whole object when
// it is shorter than n.
func (o *ObjectIO) ReadTail(n int64) ([]byte, error) {
	if n > o.size {
		n = o.size
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := o.ReadAt(buf, o.size-n); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

func (o *ObjectIO) clamp(r plan.Range) (plan.Range, error) {
	if r.Start >= o.size {
		return r, &TransientIOError{URI: o.uri, Range: r, Err: fmt.Errorf("range starts past end of %d byte object", o.size)}
	}
	if r.End >= o.size {
		r.End = o.size - 1
	}
	return r, nil
}

// lookup returns the bytes of r from a cached range covering it. touch
// refreshes the recency of the covering entry.
func (o *ObjectIO) lookup(r plan.Range, touch bool) ([]byte, bool) {
	if data, ok := o.cache.Peek(r); ok {
		if touch {
			o.cache.Get(r)
		}
		return data, true
	}

	for _, cached := range o.cache.Keys() {
		if !cached.Contains(r) {
			continue
		}
		data, ok := o.cache.Peek(cached)
		if !ok {
			continue
		}
		if touch {
			o.cache.Get(cached)
		}
		lo := r.Start - cached.Start
		return data[lo : lo+r.Length()], true
	}
	return nil, false
}

// fetch reads r under the request timeout and caches it.
func (o *ObjectIO) fetch(r plan.Range) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RequestTimeout)
	defer cancel()

	data, err := o.fetcher.Fetch(ctx, o.uri, r)
	if err != nil {
		return nil, &TransientIOError{URI: o.uri, Range: r, Err: err}
	}
	o.fetched.Add(int64(len(data)))
	o.cache.Add(r, data)
	return data, nil
}

func (o *ObjectIO) fetchWithRetry(r plan.Range) ([]byte, error) {
	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
		Jitter: true,
	}

	data, err := o.fetch(r)
	for attempt := 0; err != nil && attempt < o.cfg.DemandRetries; attempt++ {
		dur := b.Duration()
		level.Debug(o.logger).Log("msg", "retrying demand read", "range", r, "attempt", attempt+1, "backoff", dur, "err", err)
		time.Sleep(dur)
		data, err = o.fetch(r)
	}
	return data, err
}
