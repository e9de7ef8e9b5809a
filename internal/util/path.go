package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotDirectory = errors.New("not a directory")

// ResolveOutputDir returns the absolute form of path, creating the directory
// when it does not exist yet.
func ResolveOutputDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", abs, err)
		}
		return abs, nil
	case err != nil:
		return "", err
	case !info.IsDir():
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}
