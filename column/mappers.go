package column

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/parquet-go/format"
)

// ErrInvalidChunk is returned by BuildMappers when the footer describes a
// column chunk that cannot be located in the file.
var ErrInvalidChunk = errors.New("invalid column chunk")

// Mappers indexes the column chunks of one file by start offset and by name.
// Both indexes hold the same set of values. Mappers is immutable once built
// and safe for concurrent use.
type Mappers struct {
	byOffset map[int64]Metadata
	byName   map[string][]Metadata
	sorted   []Metadata
	numRG    int
	hash     uint64
}

// NewMappers indexes chunks. Chunks sharing a start offset or a
// (name, row group) pair are rejected.
func NewMappers(chunks []Metadata) (*Mappers, error) {
	m := &Mappers{
		byOffset: make(map[int64]Metadata, len(chunks)),
		byName:   make(map[string][]Metadata),
		sorted:   make([]Metadata, 0, len(chunks)),
	}

	for _, c := range chunks {
		if c.CompressedSize <= 0 {
			return nil, fmt.Errorf("%w: %s has compressed size %d", ErrInvalidChunk, c.Name, c.CompressedSize)
		}
		if c.StartOffset < 0 || c.DataPageOffset < 0 || c.DictionaryOffset < 0 {
			return nil, fmt.Errorf("%w: %s has a negative offset", ErrInvalidChunk, c)
		}
		if prev, ok := m.byOffset[c.StartOffset]; ok {
			return nil, fmt.Errorf("%w: %s and %s share start offset %d", ErrInvalidChunk, prev, c, c.StartOffset)
		}
		for _, prev := range m.byName[c.Name] {
			if prev.RowGroup == c.RowGroup {
				return nil, fmt.Errorf("%w: column %s appears twice in row group %d", ErrInvalidChunk, c.Name, c.RowGroup)
			}
		}

		m.byOffset[c.StartOffset] = c
		m.byName[c.Name] = append(m.byName[c.Name], c)
		m.sorted = append(m.sorted, c)
		if c.RowGroup+1 > m.numRG {
			m.numRG = c.RowGroup + 1
		}
		m.hash = c.SchemaHash
	}

	for _, list := range m.byName {
		sort.SliceStable(list, func(i, j int) bool { return list[i].RowGroup < list[j].RowGroup })
	}
	sort.Slice(m.sorted, func(i, j int) bool { return m.sorted[i].StartOffset < m.sorted[j].StartOffset })

	return m, nil
}

// BuildMappers builds Mappers from a decoded footer in a single pass over
// its row groups. Nested fields are named by their dot-joined leaf path.
func BuildMappers(meta *format.FileMetaData) (*Mappers, error) {
	if meta == nil {
		return NewMappers(nil)
	}

	hash := Fingerprint(meta)

	var chunks []Metadata
	for rg := range meta.RowGroups {
		for _, cc := range meta.RowGroups[rg].Columns {
			md := cc.MetaData
			start := md.DataPageOffset
			if md.DictionaryPageOffset > 0 {
				start = md.DictionaryPageOffset
			}
			chunks = append(chunks, Metadata{
				RowGroup:         rg,
				Name:             strings.Join(md.PathInSchema, "."),
				DataPageOffset:   md.DataPageOffset,
				DictionaryOffset: md.DictionaryPageOffset,
				StartOffset:      start,
				CompressedSize:   md.TotalCompressedSize,
				SchemaHash:       hash,
			})
		}
	}

	m, err := NewMappers(chunks)
	if err != nil {
		return nil, err
	}
	if m.numRG < len(meta.RowGroups) {
		m.numRG = len(meta.RowGroups)
	}
	return m, nil
}

// Fingerprint hashes the ordered column names of a file. Files sharing a
// schema share a fingerprint.
func Fingerprint(meta *format.FileMetaData) uint64 {
	d := xxhash.New()
	if len(meta.RowGroups) == 0 {
		return d.Sum64()
	}
	for _, cc := range meta.RowGroups[0].Columns {
		_, _ = d.WriteString(strings.Join(cc.MetaData.PathInSchema, "."))
	}
	return d.Sum64()
}

// ByOffset returns the chunk starting at off.
func (m *Mappers) ByOffset(off int64) (Metadata, bool) {
	c, ok := m.byOffset[off]
	return c, ok
}

// ByName returns every chunk of the named column, ordered by row group.
func (m *Mappers) ByName(name string) []Metadata {
	return m.byName[name]
}

// ForRowGroup returns the chunk of the named column in row group rg.
func (m *Mappers) ForRowGroup(name string, rg int) (Metadata, bool) {
	for _, c := range m.byName[name] {
		if c.RowGroup == rg {
			return c, true
		}
	}
	return Metadata{}, false
}

// Overlapping returns the chunks touched by a read of length bytes at start,
// in offset order.
//
// A read starting strictly inside a chunk belongs to that chunk alone.
// Otherwise every chunk whose start offset falls inside the read is
// returned. A non-positive length touches nothing.
func (m *Mappers) Overlapping(start, length int64) []Metadata {
	if length <= 0 || len(m.sorted) == 0 {
		return nil
	}

	// first chunk starting after start
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i].StartOffset > start })
	if i > 0 {
		prev := m.sorted[i-1]
		if prev.StartOffset < start && prev.contains(start) {
			return []Metadata{prev}
		}
		if prev.StartOffset == start {
			i--
		}
	}

	end := start + length
	var out []Metadata
	for ; i < len(m.sorted) && m.sorted[i].StartOffset < end; i++ {
		out = append(out, m.sorted[i])
	}
	return out
}

// NumRowGroups returns the number of row groups in the file.
func (m *Mappers) NumRowGroups() int {
	return m.numRG
}

// Len returns the number of indexed chunks.
func (m *Mappers) Len() int {
	return len(m.sorted)
}

// IsEmpty reports whether the file has no column chunks.
func (m *Mappers) IsEmpty() bool {
	return m == nil || len(m.sorted) == 0
}

// SchemaHash returns the fingerprint shared by every chunk.
func (m *Mappers) SchemaHash() uint64 {
	return m.hash
}

// Chunks returns every chunk in offset order. The slice must not be
// modified.
func (m *Mappers) Chunks() []Metadata {
	return m.sorted
}
