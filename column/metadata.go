package column

import (
	"fmt"

	"github.com/vegasq/pqprefetch/plan"
)

// Metadata describes one column chunk of one row group.
//
// Metadata is an immutable value. StartOffset is the dictionary page offset
// when the chunk has a dictionary, otherwise the data page offset, and is
// unique within a file.
type Metadata struct {
	RowGroup         int    `json:"row_group"`
	Name             string `json:"name"`
	DataPageOffset   int64  `json:"data_page_offset"`
	DictionaryOffset int64  `json:"dictionary_offset,omitempty"`
	StartOffset      int64  `json:"start_offset"`
	CompressedSize   int64  `json:"compressed_size"`
	SchemaHash       uint64 `json:"schema_hash"`
}

// HasDictionary reports whether the chunk starts with a dictionary page.
func (m Metadata) HasDictionary() bool {
	return m.DictionaryOffset > 0
}

// End returns the offset of the last byte of the chunk.
func (m Metadata) End() int64 {
	return m.StartOffset + m.CompressedSize - 1
}

// ColumnRange returns the bytes of the whole chunk.
func (m Metadata) ColumnRange() plan.Range {
	return plan.Range{Start: m.StartOffset, End: m.End()}
}

// DictionaryRange returns the bytes of the dictionary page. ok is false when
// the chunk has no dictionary.
func (m Metadata) DictionaryRange() (r plan.Range, ok bool) {
	if !m.HasDictionary() || m.DataPageOffset <= m.DictionaryOffset {
		return plan.Range{}, false
	}
	return plan.Range{Start: m.DictionaryOffset, End: m.DataPageOffset - 1}, true
}

// contains reports whether off lies within the chunk.
func (m Metadata) contains(off int64) bool {
	return off >= m.StartOffset && off <= m.End()
}

// String formats the chunk for logs.
func (m Metadata) String() string {
	return fmt.Sprintf("%s[rg=%d %d+%d]", m.Name, m.RowGroup, m.StartOffset, m.CompressedSize)
}
