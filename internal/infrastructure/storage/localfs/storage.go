package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// Storage exposes the framework document directory. Keys are slash-separated
// paths relative to the base directory.
type Storage struct {
	basePath string
	includes []string
	excludes []string
}

func New(basePath string, includes, excludes []string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/frameworks"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if len(includes) == 0 {
		includes = []string{"**/*.pdf"}
	}
	for _, pattern := range append(append([]string(nil), includes...), excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "storage patterns", fmt.Errorf("bad glob %q", pattern))
		}
	}
	return &Storage{basePath: basePath, includes: includes, excludes: excludes}, nil
}

// List returns matching files sorted by key.
func (s *Storage) List(ctx context.Context) ([]ports.ObjectInfo, error) {
	var out []ports.ObjectInfo
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			if key != "." && matchAny(s.excludes, key+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchAny(s.includes, key) || matchAny(s.excludes, key) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ports.ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk storage dir: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	local := filepath.FromSlash(key)
	if !filepath.IsLocal(local) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open file", fmt.Errorf("key escapes storage dir: %q", key))
	}
	f, err := os.Open(filepath.Join(s.basePath, local))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open file", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func matchAny(patterns []string, key string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}
