package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cleaner deletes stored files. Deleting a file that is already gone is not an error.
type Cleaner interface {
	DeleteFiles(ctx context.Context, paths []string) error
}

// LocalCleaner deletes files under a base directory.
// Paths are confined to the base directory.
type LocalCleaner struct {
	baseDir string
}

// NewLocalCleaner creates a LocalCleaner rooted at baseDir.
func NewLocalCleaner(baseDir string) (*LocalCleaner, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &LocalCleaner{baseDir: abs}, nil
}

// DeleteFiles removes every path and reports all failures together.
func (c *LocalCleaner) DeleteFiles(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs, err := c.resolvePath(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrFailedToDelete, p, err))
		}
	}
	return errors.Join(errs...)
}

func (c *LocalCleaner) resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(c.baseDir, filepath.Clean("/"+path)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	if !strings.HasPrefix(abs, c.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return abs, nil
}
