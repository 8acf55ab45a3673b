package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
)

// FilesystemSink writes archive batches under a local directory, mirroring
// the object key layout. Metadata lands next to each object as a .meta.json
// sidecar. Used in dev and in tests.
type FilesystemSink struct {
	dir    string
	logger arbor.ILogger
}

// NewFilesystemSink creates a sink rooted at dir
func NewFilesystemSink(dir string, logger arbor.ILogger) (*FilesystemSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FilesystemSink{dir: dir, logger: logger}, nil
}

// Upload writes the object and its metadata sidecar
func (s *FilesystemSink) Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive subdirectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write archive object %s: %w", key, err)
	}

	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode archive metadata for %s: %w", key, err)
		}
		if err := os.WriteFile(path+".meta.json", meta, 0o644); err != nil {
			return fmt.Errorf("write archive metadata %s: %w", key, err)
		}
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Archive object written")
	return nil
}
