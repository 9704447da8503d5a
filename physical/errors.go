package physical

import (
	"fmt"

	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

// TransientIOError reports a failed range fetch. Prefetching swallows these;
// demand reads retry them before giving up.
type TransientIOError struct {
	URI   s3uri.URI
	Range plan.Range
	Err   error
}

// Error implements error.
func (e *TransientIOError) Error() string {
	return fmt.Sprintf("fetching %s of %s: %v", e.Range, e.URI, e.Err)
}

// Unwrap returns the fetch failure.
func (e *TransientIOError) Unwrap() error {
	return e.Err
}
