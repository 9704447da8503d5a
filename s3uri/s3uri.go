// Package s3uri identifies objects read through the logical I/O layer.
package s3uri

import (
	"fmt"
	"strings"
)

const scheme = "s3://"

// URI names a single object by bucket and key.
//
// URI is comparable and is used directly as a map key by the prefetch store.
type URI struct {
	Bucket string
	Key    string
}

// Of returns the URI for the given bucket and key.
func Of(bucket, key string) URI {
	return URI{Bucket: bucket, Key: key}
}

// Parse parses a location of the form s3://bucket/key.
//
// Returns an error if the scheme is missing or either the bucket or the key
// is empty.
func Parse(location string) (URI, error) {
	if !strings.HasPrefix(location, scheme) {
		return URI{}, fmt.Errorf("invalid s3 location %q: missing %s scheme", location, scheme)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, scheme), "/")
	if !ok || bucket == "" || key == "" {
		return URI{}, fmt.Errorf("invalid s3 location %q: expected s3://bucket/key", location)
	}
	return URI{Bucket: bucket, Key: key}, nil
}

// String formats u as s3://bucket/key.
func (u URI) String() string {
	return scheme + u.Bucket + "/" + u.Key
}
