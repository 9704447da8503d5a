// Package footer decodes the trailing metadata block of a parquet file.
//
// A parquet file ends with
//
//	+----------------------+--------------------+-------+
//	| footer (thrift, L B) | L as u32 little    | PAR1  |
//	|                      | endian (4 bytes)   |       |
//	+----------------------+--------------------+-------+
//
// Parse works on an arbitrary tail window of the file, typically the last
// few hundred kilobytes fetched with a single ranged GET, and recovers the
// row group and column chunk layout without touching any page data.
//
// # Errors
//
// Failures fall in two classes that callers handle differently:
//
//   - *CallerError: the buffer holds no more than the trailer. This is
//     an argument problem.
//   - *DataError: the trailer announces a footer larger than the window
//     (ErrFooterTruncated, retry with FooterLength+8 bytes), the magic is
//     wrong (ErrBadMagic) or the footer does not decode (ErrMalformedFooter).
//
// Use errors.As and errors.Is to tell them apart:
//
//	meta, err := footer.Parse(tail, len(tail), uri)
//	var dataErr *footer.DataError
//	if errors.As(err, &dataErr) && errors.Is(err, footer.ErrFooterTruncated) {
//	    // fetch dataErr.FooterLength + footer.TrailerSize bytes and retry
//	}
package footer
