package footer

import (
	"errors"
	"fmt"

	"github.com/vegasq/pqprefetch/s3uri"
)

var (
	// ErrFooterTruncated means the tail window holds the trailer but not the
	// whole footer it announces.
	ErrFooterTruncated = errors.New("footer length exceeds available tail bytes")

	// ErrMalformedFooter means the footer bytes could not be decoded as file
	// metadata.
	ErrMalformedFooter = errors.New("malformed parquet footer")

	// ErrBadMagic means the trailer does not end with the parquet magic.
	ErrBadMagic = errors.New("invalid parquet footer magic")
)

// CallerError reports invalid arguments: the buffer handed to Parse cannot
// even contain the 8-byte trailer. Retrying with the same input never helps.
type CallerError struct {
	URI    s3uri.URI
	Reason string
}

// Error implements error.
func (e *CallerError) Error() string {
	return fmt.Sprintf("parsing footer of %s: %s", e.URI, e.Reason)
}

// DataError reports a footer that is truncated or cannot be decoded.
//
// FooterLength is the length declared by the trailer, or 0 when the trailer
// itself could not be read. When Err is ErrFooterTruncated, a tail of
// FooterLength+8 bytes is enough to parse the footer.
type DataError struct {
	URI          s3uri.URI
	FooterLength int64
	Err          error
}

// Error implements error.
func (e *DataError) Error() string {
	return fmt.Sprintf("parsing footer of %s: %v", e.URI, e.Err)
}

// Unwrap returns the underlying cause, such as ErrFooterTruncated.
func (e *DataError) Unwrap() error {
	return e.Err
}
