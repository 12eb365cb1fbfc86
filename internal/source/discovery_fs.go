package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem implements Source on the local filesystem.
type FileSystem struct{}

// ReadFile reads the file at path.
func (FileSystem) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &MissingFileError{Path: path}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return string(content), nil
}

// ListDocuments implements Lister.
func (FileSystem) ListDocuments(dir string) ([]string, error) { return ListDocuments(dir) }

// ListDocuments returns the ids of the documents found directly in dir,
// sorted. Subdirectories hold fragment files and are not listed.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in %q: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != DocumentExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), DocumentExt))
	}
	sort.Strings(ids)
	return ids, nil
}
