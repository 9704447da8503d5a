package physical

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/vegasq/pqprefetch/plan"
	"github.com/vegasq/pqprefetch/s3uri"
)

const s3RangePrefix = "bytes"

// s3svc is the subset of the S3 client used by S3Fetcher. *s3.S3 satisfies it.
type s3svc interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
}

// S3Fetcher reads object ranges with ranged GetObject requests.
type S3Fetcher struct {
	s3 s3svc
}

// NewS3Fetcher returns a fetcher issuing requests through svc.
func NewS3Fetcher(svc s3svc) *S3Fetcher {
	return &S3Fetcher{s3: svc}
}

// rangeHeader formats r as an HTTP range. Both ends are inclusive, as in r.
func rangeHeader(r plan.Range) string {
	return fmt.Sprintf("%s=%d-%d", s3RangePrefix, r.Start, r.End)
}

// Fetch reads r from uri.
func (f *S3Fetcher) Fetch(ctx context.Context, uri s3uri.URI, r plan.Range) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
		Range:  aws.String(rangeHeader(r)),
	}

	result, err := f.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()

	if result.ContentLength != nil && *result.ContentLength != r.Length() {
		return nil, fmt.Errorf("failed to read entire range, key: %s, range: %s, ContentLength: %d", uri.Key, rangeHeader(r), *result.ContentLength)
	}

	buf := make([]byte, r.Length())
	if _, err := io.ReadFull(result.Body, buf); err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rangeHeader(r), err)
	}
	return buf, nil
}

// Size returns the content length of uri.
func (f *S3Fetcher) Size(ctx context.Context, uri s3uri.URI) (int64, error) {
	out, err := f.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
	})
	if err != nil {
		return 0, err
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("no content length for %s", uri)
	}
	return *out.ContentLength, nil
}
