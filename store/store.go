// Package store holds the state shared by every prefetching task of a
// session: parsed column layouts per object, recently read columns per
// schema fingerprint, and per row group prefetch flags.
package store

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vegasq/pqprefetch/column"
	"github.com/vegasq/pqprefetch/s3uri"
)

// DefaultMetadataStoreSize is the number of parsed layouts kept when none is
// configured.
const DefaultMetadataStoreSize = 45

type rowGroupKey struct {
	uri      s3uri.URI
	rowGroup int
}

type prefetchFlags struct {
	columns    bool
	dictionary bool
}

// Store is safe for concurrent use. Construct one per session and share it
// between tasks.
type Store struct {
	mappers *lru.Cache[s3uri.URI, *column.Mappers]
	loads   singleflight.Group

	mu                 sync.RWMutex
	recentColumns      map[uint64]map[string]struct{}
	recentDictionaries map[uint64]map[string]struct{}
	flags              map[rowGroupKey]*prefetchFlags
}

// New creates a store caching at most size parsed layouts.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultMetadataStoreSize
	}
	cache, err := lru.New[s3uri.URI, *column.Mappers](size)
	if err != nil {
		return nil, fmt.Errorf("create mappers cache: %w", err)
	}

	return &Store{
		mappers:            cache,
		recentColumns:      make(map[uint64]map[string]struct{}),
		recentDictionaries: make(map[uint64]map[string]struct{}),
		flags:              make(map[rowGroupKey]*prefetchFlags),
	}, nil
}

// Mappers returns the parsed layout of uri. ok is false when the object has
// not been parsed yet.
func (s *Store) Mappers(uri s3uri.URI) (m *column.Mappers, ok bool) {
	return s.mappers.Get(uri)
}

// PutMappers stores the parsed layout of uri.
func (s *Store) PutMappers(uri s3uri.URI, m *column.Mappers) {
	s.mappers.Add(uri, m)
}

// LoadMappers returns the layout of uri, calling load to parse it when it is
// not cached. Concurrent loads of one object share a single call to load.
// Errors are not cached.
func (s *Store) LoadMappers(uri s3uri.URI, load func() (*column.Mappers, error)) (*column.Mappers, error) {
	if m, ok := s.mappers.Get(uri); ok {
		return m, nil
	}

	v, err, _ := s.loads.Do(uri.String(), func() (interface{}, error) {
		if m, ok := s.mappers.Get(uri); ok {
			return m, nil
		}
		m, err := load()
		if err != nil {
			return nil, err
		}
		s.mappers.Add(uri, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*column.Mappers), nil
}

// AddRecentColumn records a read of c's data pages under its schema
// fingerprint.
func (s *Store) AddRecentColumn(c column.Metadata) {
	s.addRecent(s.recentColumns, c)
}

// AddRecentDictionary records a read of c's dictionary page under its schema
// fingerprint.
func (s *Store) AddRecentDictionary(c column.Metadata) {
	s.addRecent(s.recentDictionaries, c)
}

func (s *Store) addRecent(sets map[uint64]map[string]struct{}, c column.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := sets[c.SchemaHash]
	if !ok {
		set = make(map[string]struct{})
		sets[c.SchemaHash] = set
	}
	set[c.Name] = struct{}{}
}

// RecentColumns returns a sorted copy of the column names read under
// fingerprint.
func (s *Store) RecentColumns(fingerprint uint64) []string {
	return s.recent(s.recentColumns, fingerprint)
}

// RecentDictionaries returns a sorted copy of the names whose dictionary was
// read under fingerprint.
func (s *Store) RecentDictionaries(fingerprint uint64) []string {
	return s.recent(s.recentDictionaries, fingerprint)
}

func (s *Store) recent(sets map[uint64]map[string]struct{}, fingerprint uint64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := sets[fingerprint]
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsColumnsPrefetched reports whether column data of the row group has been
// prefetched.
func (s *Store) IsColumnsPrefetched(uri s3uri.URI, rowGroup int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.flags[rowGroupKey{uri, rowGroup}]
	return f != nil && f.columns
}

// IsDictionaryPrefetched reports whether dictionaries of the row group have
// been prefetched.
func (s *Store) IsDictionaryPrefetched(uri s3uri.URI, rowGroup int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.flags[rowGroupKey{uri, rowGroup}]
	return f != nil && f.dictionary
}

// MarkColumnsPrefetched sets the columns flag of the row group. It returns
// true only to the caller that set it.
func (s *Store) MarkColumnsPrefetched(uri s3uri.URI, rowGroup int) bool {
	return s.mark(uri, rowGroup, func(f *prefetchFlags) *bool { return &f.columns })
}

// MarkDictionaryPrefetched sets the dictionary flag of the row group. It
// returns true only to the caller that set it.
func (s *Store) MarkDictionaryPrefetched(uri s3uri.URI, rowGroup int) bool {
	return s.mark(uri, rowGroup, func(f *prefetchFlags) *bool { return &f.dictionary })
}

func (s *Store) mark(uri s3uri.URI, rowGroup int, field func(*prefetchFlags) *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowGroupKey{uri, rowGroup}
	f, ok := s.flags[key]
	if !ok {
		f = &prefetchFlags{}
		s.flags[key] = f
	}
	flag := field(f)
	if *flag {
		return false
	}
	*flag = true
	return true
}
