// Package footertest builds parquet footers and file tails for tests.
package footertest

import (
	"encoding/binary"
	"strings"

	"github.com/segmentio/encoding/thrift"
	"github.com/segmentio/parquet-go/format"
)

// Chunk describes a column chunk. A zero DictionaryOffset means the chunk has
// no dictionary page.
type Chunk struct {
	Path             string
	DictionaryOffset int64
	DataPageOffset   int64
	CompressedSize   int64
}

// Metadata returns file metadata with one row group per element of rowGroups.
// Dotted paths become multi-element paths in schema.
func Metadata(rowGroups ...[]Chunk) *format.FileMetaData {
	meta := &format.FileMetaData{
		Version: 1,
		Schema:  []format.SchemaElement{{Name: "schema"}},
	}
	if len(rowGroups) > 0 {
		for _, c := range rowGroups[0] {
			meta.Schema = append(meta.Schema, format.SchemaElement{Name: c.Path})
		}
		meta.Schema[0].NumChildren = int32(len(rowGroups[0]))
	}

	for _, chunks := range rowGroups {
		rg := format.RowGroup{NumRows: 10}
		for _, c := range chunks {
			rg.TotalByteSize += c.CompressedSize
			rg.Columns = append(rg.Columns, format.ColumnChunk{
				FileOffset: c.DataPageOffset,
				MetaData: format.ColumnMetaData{
					PathInSchema:          strings.Split(c.Path, "."),
					NumValues:             10,
					TotalCompressedSize:   c.CompressedSize,
					TotalUncompressedSize: c.CompressedSize,
					DataPageOffset:        c.DataPageOffset,
					DictionaryPageOffset:  c.DictionaryOffset,
				},
			})
		}
		meta.RowGroups = append(meta.RowGroups, rg)
		meta.NumRows += rg.NumRows
	}
	return meta
}

// Encode returns the thrift compact encoding of meta.
func Encode(meta *format.FileMetaData) ([]byte, error) {
	return thrift.Marshal(new(thrift.CompactProtocol), meta)
}

// Tail returns prefix followed by the encoded footer and the trailer.
func Tail(prefix []byte, meta *format.FileMetaData) ([]byte, error) {
	data, err := Encode(meta)
	if err != nil {
		return nil, err
	}
	return Frame(prefix, data, "PAR1"), nil
}

// Frame appends footer and a trailer declaring len(footer) to prefix.
func Frame(prefix, footer []byte, magic string) []byte {
	tail := make([]byte, 0, len(prefix)+len(footer)+8)
	tail = append(tail, prefix...)
	tail = append(tail, footer...)
	tail = binary.LittleEndian.AppendUint32(tail, uint32(len(footer)))
	return append(tail, magic...)
}
