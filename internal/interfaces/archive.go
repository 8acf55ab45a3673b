package interfaces

import "context"

// ArchiveSink receives serialized retention archive batches. Implementations
// upload to S3-compatible object storage or write to the local filesystem.
type ArchiveSink interface {
	Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error
}
