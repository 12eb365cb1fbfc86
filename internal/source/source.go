package source

import (
	"context"
	"path/filepath"
)

const (
	DocumentExt   = ".gql"
	DictionaryExt = ".js"
)

// Source reads document, fragment and dictionary files by path.
// A file that does not exist is reported as *MissingFileError.
type Source interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Lister is implemented by sources that can enumerate the documents of a
// directory.
type Lister interface {
	ListDocuments(dir string) ([]string, error)
}

// Document is a GraphQL source text and the file it was read from.
type Document struct {
	Path string
	Text string
}

// Dir is the directory imports of d are resolved against.
func (d *Document) Dir() string { return filepath.Dir(d.Path) }

// Load reads the document at path.
func Load(ctx context.Context, src Source, path string) (*Document, error) {
	text, err := src.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Document{Path: path, Text: text}, nil
}

// Layout locates the files of a document id: <Documents>/<id>.gql and
// <Dictionaries>/<id>.js.
type Layout struct {
	Documents    string
	Dictionaries string
}

func (l Layout) DocumentPath(id string) string {
	return filepath.Join(l.Documents, id+DocumentExt)
}

func (l Layout) DictionaryPath(id string) string {
	return filepath.Join(l.Dictionaries, id+DictionaryExt)
}

// Abs returns l with both directories made absolute.
func (l Layout) Abs() (Layout, error) {
	docs, err := filepath.Abs(l.Documents)
	if err != nil {
		return l, err
	}
	dicts, err := filepath.Abs(l.Dictionaries)
	if err != nil {
		return l, err
	}
	return Layout{Documents: docs, Dictionaries: dicts}, nil
}
