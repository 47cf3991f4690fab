package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// localStore implements ObjectStore on the local file system. Used when
// S3 is disabled (development, tests).
type localStore struct {
	dir    string
	logger zerolog.Logger
}

// NewLocalStore creates a file-system-backed object store rooted at dir.
func NewLocalStore(dir string, logger zerolog.Logger) ObjectStore {
	return &localStore{
		dir:    dir,
		logger: logger.With().Str("component", "local-store").Logger(),
	}
}

func (s *localStore) Put(_ context.Context, filename, _ string, data []byte) (string, error) {
	rel := path.Join(uuid.NewString(), path.Base(filename))
	full := filepath.Join(s.dir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", full).Msg("failed to write attachment file")
		return "", fmt.Errorf("failed to write attachment file: %w", err)
	}

	s.logger.Debug().Str("path", full).Int("size", len(data)).Msg("attachment stored")
	return "/files/" + rel, nil
}

func (s *localStore) Delete(_ context.Context, url string) error {
	rel := strings.TrimPrefix(url, "/files/")
	if rel == url {
		s.logger.Warn().Str("url", url).Msg("skipping delete of foreign object URL")
		return nil
	}
	full := filepath.Join(s.dir, filepath.FromSlash(rel))

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		s.logger.Error().Err(err).Str("path", full).Msg("failed to remove attachment file")
		return fmt.Errorf("failed to remove attachment file: %w", err)
	}
	return nil
}
