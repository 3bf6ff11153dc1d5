// Package archive persists raw scrape payloads so a classification run can be
// replayed or audited later.
package archive

import (
	"context"
	"io"
)

// BlobStore writes one raw payload and returns a URI locating it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// NoOp discards payloads. Used when no archive is configured.
type NoOp struct{}

// PutObject drops the data and returns an empty URI.
func (NoOp) PutObject(_ context.Context, _ string, _ string, data io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, data)
	return "", err
}
