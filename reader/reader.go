// Package reader supplies columnar batches from market-data source files.
// It knows nothing about record kinds: it yields typed column vectors and
// the file's key-value metadata, and leaves the mapping to records to the
// decoder package.
package reader

import (
	"context"
	"strings"
)

// DefaultBatchSize is the number of rows pulled per batch when no size is
// configured.
const DefaultBatchSize = 8192

// BatchReader yields the batches of one source file in file order.
type BatchReader interface {
	Schema() Schema
	// Metadata returns the file-level key-value metadata.
	Metadata() map[string]string
	// NumRows returns the total row count, or -1 when unknown.
	NumRows() int64
	// NextBatch returns the next batch, or io.EOF when the source is
	// exhausted.
	NextBatch(ctx context.Context) (*Batch, error)
	Close() error
}

// Opener opens a BatchReader for a path.
type Opener interface {
	Open(ctx context.Context, path string) (BatchReader, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (BatchReader, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (BatchReader, error) {
	return f(ctx, path)
}

// IsS3Path reports whether path addresses an S3 object.
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
