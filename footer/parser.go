package footer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/segmentio/encoding/thrift"
	"github.com/segmentio/parquet-go/format"

	"github.com/vegasq/pqprefetch/s3uri"
)

const (
	// TrailerSize is the size of the [u32le footer length][magic] trailer.
	TrailerSize = 8

	magic          = "PAR1"
	encryptedMagic = "PARE"
)

// Parse decodes the parquet footer found at the end of tail.
//
// Only the first validLength bytes of tail are considered; they must end
// with the file trailer. A validLength that cannot hold more than the trailer
// yields a *CallerError. A footer that does not fit in the valid bytes, or that does
// not decode, yields a *DataError. Parse never panics on malformed input.
//
// A file with zero row groups is valid.
func Parse(tail []byte, validLength int, uri s3uri.URI) (meta *format.FileMetaData, err error) {
	if validLength < 0 || validLength > len(tail) {
		return nil, &CallerError{URI: uri, Reason: fmt.Sprintf("valid length %d out of bounds for %d byte buffer", validLength, len(tail))}
	}
	// Eight bytes hold only the trailer, so no footer can fit.
	if validLength <= TrailerSize {
		return nil, &CallerError{URI: uri, Reason: fmt.Sprintf("tail of %d bytes cannot hold a footer and the %d byte trailer", validLength, TrailerSize)}
	}

	stream := kaitai.NewStream(bytes.NewReader(tail[:validLength]))
	footerLength, err := readTrailer(stream, validLength)
	if err != nil {
		return nil, &DataError{URI: uri, FooterLength: footerLength, Err: err}
	}

	if footerLength > int64(validLength-TrailerSize) {
		return nil, &DataError{
			URI:          uri,
			FooterLength: footerLength,
			Err:          fmt.Errorf("%w: footer needs %d bytes, tail holds %d", ErrFooterTruncated, footerLength, validLength-TrailerSize),
		}
	}

	if _, err := stream.Seek(int64(validLength-TrailerSize)-footerLength, io.SeekStart); err != nil {
		return nil, &DataError{URI: uri, FooterLength: footerLength, Err: fmt.Errorf("seeking to footer: %w", err)}
	}
	data, err := stream.ReadBytes(int(footerLength))
	if err != nil {
		return nil, &DataError{URI: uri, FooterLength: footerLength, Err: fmt.Errorf("reading footer: %w", err)}
	}

	meta, err = decode(data)
	if err != nil {
		return nil, &DataError{URI: uri, FooterLength: footerLength, Err: err}
	}
	return meta, nil
}

// readTrailer returns the footer length declared by the trailer.
func readTrailer(stream *kaitai.Stream, validLength int) (int64, error) {
	if _, err := stream.Seek(int64(validLength-TrailerSize), io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking to trailer: %w", err)
	}
	length, err := stream.ReadU4le()
	if err != nil {
		return 0, fmt.Errorf("reading footer length: %w", err)
	}
	marker, err := stream.ReadBytes(len(magic))
	if err != nil {
		return int64(length), fmt.Errorf("reading footer magic: %w", err)
	}

	switch string(marker) {
	case magic:
		return int64(length), nil
	case encryptedMagic:
		return int64(length), fmt.Errorf("%w: encrypted footers are not supported", ErrBadMagic)
	default:
		return int64(length), fmt.Errorf("%w: %q", ErrBadMagic, marker)
	}
}

// decode unmarshals thrift compact bytes into file metadata. Panics raised by
// the decoder on adversarial input are converted into errors.
func decode(data []byte) (meta *format.FileMetaData, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("%w: decoder panic: %v", ErrMalformedFooter, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty footer", ErrMalformedFooter)
	}

	meta = new(format.FileMetaData)
	dec := thrift.NewDecoder(newBoundedReader(new(thrift.CompactProtocol), data))
	if err := dec.Decode(meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFooter, err)
	}
	if len(meta.Schema) == 0 {
		return nil, fmt.Errorf("%w: missing root schema element", ErrMalformedFooter)
	}
	return meta, nil
}
