package footer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/segmentio/encoding/thrift"
)

// thriftReader aliases thrift.Reader so that embedding it does not create a
// field named Reader, which would shadow the interface's Reader method.
type thriftReader = thrift.Reader

// boundedReader rejects container and binary lengths larger than the bytes
// left in the footer. The decoder allocates a container before reading its
// elements, so an unchecked length could exhaust memory. Every element
// takes at least one byte on the wire.
type boundedReader struct {
	thriftReader
	src *bytes.Reader
}

func newBoundedReader(p thrift.Protocol, data []byte) *boundedReader {
	src := bytes.NewReader(data)
	return &boundedReader{thriftReader: p.NewReader(src), src: src}
}

func (r *boundedReader) check(kind string, n int64) error {
	if n < 0 || n > int64(r.src.Len()) {
		return fmt.Errorf("%w: %s of %d elements exceeds the %d bytes left", ErrMalformedFooter, kind, n, r.src.Len())
	}
	return nil
}

func (r *boundedReader) ReadList() (thrift.List, error) {
	l, err := r.thriftReader.ReadList()
	if err != nil {
		return l, err
	}
	return l, r.check("list", int64(l.Size))
}

func (r *boundedReader) ReadSet() (thrift.Set, error) {
	s, err := r.thriftReader.ReadSet()
	if err != nil {
		return s, err
	}
	return s, r.check("set", int64(s.Size))
}

func (r *boundedReader) ReadMap() (thrift.Map, error) {
	m, err := r.thriftReader.ReadMap()
	if err != nil {
		return m, err
	}
	return m, r.check("map", int64(m.Size))
}

func (r *boundedReader) ReadLength() (int, error) {
	n, err := r.thriftReader.ReadLength()
	if err != nil {
		return n, err
	}
	return n, r.check("length", int64(n))
}

func (r *boundedReader) ReadBytes() ([]byte, error) {
	if err := r.peekLength(); err != nil {
		return nil, err
	}
	return r.thriftReader.ReadBytes()
}

func (r *boundedReader) ReadString() (string, error) {
	if err := r.peekLength(); err != nil {
		return "", err
	}
	return r.thriftReader.ReadString()
}

// peekLength checks the varint length prefix of a binary value without
// consuming it.
func (r *boundedReader) peekLength() error {
	pos := r.src.Size() - int64(r.src.Len())
	n, err := binary.ReadUvarint(r.src)
	remaining := int64(r.src.Len())
	if _, serr := r.src.Seek(pos, io.SeekStart); serr != nil {
		return serr
	}
	if err != nil {
		// Let the protocol report its own error for a bad prefix.
		return nil
	}
	if n > uint64(remaining) {
		return fmt.Errorf("%w: binary of %d bytes exceeds the %d bytes left", ErrMalformedFooter, n, remaining)
	}
	return nil
}
