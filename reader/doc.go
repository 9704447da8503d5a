// Package reader opens Parquet objects through the prefetching layer.
//
// A Session owns the state shared by its readers: the prefetch store and the
// fetcher that reaches the objects. Opening a reader parses the object's
// footer once per session, then prefetches the columns recently read on
// other objects with the same schema.
//
// # Basic Usage
//
// Reading local files:
//
//	session, err := reader.NewSession(cfg, physical.NewFileFetcher(""), logger, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	r, err := session.Open(ctx, s3uri.Of("local", "data.parquet"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for _, c := range r.Layout() {
//	    fmt.Printf("%s rg=%d %s\n", c.Name, c.RowGroup, c.ColumnRange())
//	}
//
// # Decoding
//
// Reader implements io.ReaderAt, so it can back a Parquet decoder directly.
// Scan projects a set of columns the way a query engine would:
//
//	result, err := r.Scan("id", "name")
//
// Every read issued by the decoder is recorded; reads of one row group
// trigger a prefetch of the recently read columns of that row group.
//
// # Errors
//
// Footer failures surface as *footer.CallerError or *footer.DataError. A
// footer larger than the configured tail is retried once with a tail of
// exactly the announced size.
package reader
