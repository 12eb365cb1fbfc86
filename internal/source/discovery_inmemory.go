package source

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// InMemory is a Source backed by a map of file contents. It counts reads so
// tests can assert which files were touched.
type InMemory struct {
	mu    sync.Mutex
	files map[string]string
	reads map[string]int
}

// NewInMemory creates an InMemory source. Keys are cleaned file paths.
func NewInMemory(files map[string]string) *InMemory {
	m := &InMemory{
		files: make(map[string]string, len(files)),
		reads: make(map[string]int),
	}
	for p, content := range files {
		m.files[filepath.Clean(p)] = content
	}
	return m
}

// ReadFile implements Source.
func (m *InMemory) ReadFile(ctx context.Context, path string) (string, error) {
	path = filepath.Clean(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[path]++
	content, ok := m.files[path]
	if !ok {
		return "", &MissingFileError{Path: path}
	}
	return content, nil
}

// Reads returns how many times path was read.
func (m *InMemory) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[filepath.Clean(path)]
}

// TotalReads returns the number of reads across all paths.
func (m *InMemory) TotalReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.reads {
		n += c
	}
	return n
}

// ListDocuments implements Lister.
func (m *InMemory) ListDocuments(dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for p := range m.files {
		if filepath.Dir(p) != dir || filepath.Ext(p) != DocumentExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(filepath.Base(p), DocumentExt))
	}
	sort.Strings(ids)
	return ids, nil
}
