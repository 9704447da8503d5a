package reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/parquet-go/format"

	"github.com/vegasq/pqprefetch/column"
	"github.com/vegasq/pqprefetch/config"
	"github.com/vegasq/pqprefetch/footer"
	"github.com/vegasq/pqprefetch/physical"
	"github.com/vegasq/pqprefetch/prefetch"
	"github.com/vegasq/pqprefetch/s3uri"
	"github.com/vegasq/pqprefetch/store"
)

// Session opens readers that share one prefetch store, so access patterns
// learned on one object drive prefetching on others with the same schema.
type Session struct {
	cfg             *config.Config
	fetcher         physical.Fetcher
	store           *store.Store
	logger          log.Logger
	metrics         *Metrics
	prefetchMetrics *prefetch.Metrics
}

// NewSession creates a session reading objects through fetcher. A nil cfg
// uses the defaults, a nil logger discards output and a nil registerer
// disables metrics.
func NewSession(cfg *config.Config, fetcher physical.Fetcher, logger log.Logger, reg prometheus.Registerer) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	st, err := store.New(cfg.Store.MetadataStoreSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		logger:  logger,
	}
	if reg != nil {
		s.metrics = NewMetrics(reg)
		s.prefetchMetrics = prefetch.NewMetrics(reg)
	}
	return s, nil
}

// Store returns the prefetch state shared by the session's readers.
func (s *Session) Store() *store.Store {
	return s.store
}

// Open parses the layout of uri, unless an earlier reader already did, and
// prefetches the recently read columns of its first row groups.
func (s *Session) Open(ctx context.Context, uri s3uri.URI) (*Reader, error) {
	logger := log.With(s.logger, "uri", uri.String())

	obj, err := physical.NewObjectIO(ctx, uri, s.fetcher, s.cfg.PhysicalConfig(), logger)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		uri:    uri,
		obj:    obj,
		logger: logger,
		tail:   s.cfg.Footer.TailLength,
	}

	mappers, err := s.store.LoadMappers(uri, func() (*column.Mappers, error) {
		meta, err := r.readFooter(s.metrics)
		if err != nil {
			return nil, err
		}
		r.meta = meta

		m, err := column.BuildMappers(meta)
		if err != nil {
			return nil, &footer.DataError{URI: uri, Err: err}
		}
		level.Debug(logger).Log("msg", "parsed footer", "row_groups", m.NumRowGroups(), "chunks", m.Len())
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	r.mappers = mappers

	r.task = prefetch.NewTask(uri, s.cfg.PrefetchConfig(), obj, s.store, logger, s.prefetchMetrics)
	r.cold = r.task.PrefetchRecent(mappers, allRowGroups(mappers), true)
	return r, nil
}

// Close releases the resources held by the fetcher, if any.
func (s *Session) Close() error {
	if c, ok := s.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// readFooter parses the footer from the configured tail. When the footer
// does not fit, it retries once with a tail of exactly the announced size.
func (r *Reader) readFooter(metrics *Metrics) (*format.FileMetaData, error) {
	tail, err := r.obj.ReadTail(r.tail)
	if err != nil {
		metrics.parsed("error")
		return nil, fmt.Errorf("failed to read tail of %s: %w", r.uri, err)
	}

	meta, err := footer.Parse(tail, len(tail), r.uri)
	if err == nil {
		metrics.parsed("ok")
		return meta, nil
	}

	var dataErr *footer.DataError
	if !errors.As(err, &dataErr) || !errors.Is(err, footer.ErrFooterTruncated) || int64(len(tail)) >= r.obj.Size() {
		metrics.parsed("error")
		return nil, err
	}

	level.Debug(r.logger).Log("msg", "footer larger than tail, retrying", "tail", len(tail), "footer_length", dataErr.FooterLength)
	tail, err = r.obj.ReadTail(dataErr.FooterLength + footer.TrailerSize)
	if err != nil {
		metrics.parsed("error")
		return nil, fmt.Errorf("failed to read tail of %s: %w", r.uri, err)
	}
	meta, err = footer.Parse(tail, len(tail), r.uri)
	if err != nil {
		metrics.parsed("error")
		return nil, err
	}
	metrics.parsed("retried")
	return meta, nil
}

func allRowGroups(m *column.Mappers) []int {
	rgs := make([]int, m.NumRowGroups())
	for i := range rgs {
		rgs[i] = i
	}
	return rgs
}
