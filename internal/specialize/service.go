// Package specialize cuts a declared query document down to the fields a
// caller asks for.
//
// Building the full schema of a document reads its file and every fragment
// file it imports, flattens the query and loads and normalizes its
// dictionary. That work is done once per document id and cached; each cut
// then filters the dictionary and prunes the cached operation.
package specialize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/keywordwei/graphql-loader/internal/dictionary"
	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	"github.com/keywordwei/graphql-loader/internal/fieldpath"
	"github.com/keywordwei/graphql-loader/internal/flatten"
	"github.com/keywordwei/graphql-loader/internal/imports"
	language "github.com/keywordwei/graphql-loader/internal/language"
	"github.com/keywordwei/graphql-loader/internal/prune"
	source "github.com/keywordwei/graphql-loader/internal/source"
)

// ErrInvalidDocument is returned for a document id that cannot name a file
// inside the documents directory.
var ErrInvalidDocument = errors.New("invalid document id")

// Schema is the full, unfiltered specialization of a document.
type Schema struct {
	Document string
	// Operation is the flattened query operation.
	Operation *language.OperationDefinition
	Paths     flatten.FragmentPaths
	// Dict holds document-absolute paths.
	Dict dictionary.Dictionary
	List string
	// Files lists the document file followed by its imports in load order.
	Files []string
}

// Result is a specialized query.
type Result struct {
	Query string                `json:"query"`
	List  string                `json:"list"`
	Dict  dictionary.Dictionary `json:"dict"`
}

// Option configures a Service.
type Option func(*Service)

// WithCache makes the service store schemas in c. Services sharing a cache
// must use the same layout.
func WithCache(c *Cache) Option { return func(s *Service) { s.cache = c } }

// WithStrictFields makes a cut fail with *dictionary.UnknownFieldError when
// a requested field is not declared, instead of returning it as undefined.
func WithStrictFields(strict bool) Option { return func(s *Service) { s.strict = strict } }

// WithDictionaryTimeout bounds the evaluation of one dictionary file.
func WithDictionaryTimeout(d time.Duration) Option {
	return func(s *Service) { s.loader.Timeout = d }
}

// Service specializes the documents of a layout.
type Service struct {
	src    source.Source
	layout source.Layout
	cache  *Cache
	loader dictionary.Loader
	strict bool
}

// NewService returns a service reading files from src.
func NewService(src source.Source, layout source.Layout, opts ...Option) *Service {
	s := &Service{
		src:    src,
		layout: layout,
		loader: dictionary.Loader{Timeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	if s.cache == nil {
		s.cache = NewCache()
	}
	return s
}

// Layout returns the directories the service reads from.
func (s *Service) Layout() source.Layout { return s.layout }

// Cache returns the schema cache.
func (s *Service) Cache() *Cache { return s.cache }

// Schema returns the full schema of document id, building it on first use.
func (s *Service) Schema(ctx context.Context, id string) (*Schema, error) {
	sc, _, err := s.schema(ctx, id)
	return sc, err
}

func (s *Service) schema(ctx context.Context, id string) (*Schema, bool, error) {
	if err := validateID(id); err != nil {
		return nil, false, err
	}
	return s.cache.Get(ctx, id, s.build)
}

// Cut specializes document id for fields. A nil fields keeps every declared
// field. Undeclared names come back as undefined entries unless strict
// fields are on, but a filter that names no declared field at all (including
// an empty one) leaves nothing to query and fails with
// prune.ErrEmptySelection in either mode.
func (s *Service) Cut(ctx context.Context, id string, fields []string) (res *Result, err error) {
	start := time.Now()
	cached := false
	eventbus.Publish(ctx, events.SpecializeStart{Document: id, Fields: fields})
	defer func() {
		eventbus.Publish(ctx, events.SpecializeFinish{
			Document: id,
			Fields:   fields,
			Cached:   cached,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	var sc *Schema
	sc, cached, err = s.schema(ctx, id)
	if err != nil {
		return nil, err
	}

	dict := sc.Dict.Filter(fields)
	if missing := dict.Missing(); s.strict && len(missing) > 0 {
		return nil, &dictionary.UnknownFieldError{Document: id, Fields: missing}
	}
	op, err := prune.Operation(sc.Operation, fieldpath.CanonicalSet(dict.Paths()))
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return &Result{
		Query: language.PrintOperation(op),
		List:  sc.List,
		Dict:  dict,
	}, nil
}

// Document returns a specializer bound to document id.
func (s *Service) Document(id string) *Specializer {
	return &Specializer{svc: s, id: id}
}

// Documents lists the ids found in the documents directory.
func (s *Service) Documents() ([]string, error) {
	l, ok := s.src.(source.Lister)
	if !ok {
		return nil, fmt.Errorf("source %T cannot list documents", s.src)
	}
	return l.ListDocuments(s.layout.Documents)
}

func (s *Service) build(ctx context.Context, id string) (sc *Schema, err error) {
	start := time.Now()
	var files, fragments int
	eventbus.Publish(ctx, events.SchemaBuildStart{Document: id})
	defer func() {
		eventbus.Publish(ctx, events.SchemaBuildFinish{
			Document:  id,
			Files:     files,
			Fragments: fragments,
			Err:       err,
			Duration:  time.Since(start),
		})
	}()

	root, err := source.Load(ctx, s.src, s.layout.DocumentPath(id))
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	merged, err := imports.Resolve(ctx, s.src, root)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	files = 1 + len(merged.Files)
	fragments = len(merged.Document.Fragments)

	flat, err := flatten.Flatten(merged.Document)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	dictPath := s.layout.DictionaryPath(id)
	code, err := s.src.ReadFile(ctx, dictPath)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	file, err := s.loader.Load(ctx, dictPath, code)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	return &Schema{
		Document:  id,
		Operation: flat.Operation,
		Paths:     flat.Paths,
		Dict:      dictionary.Normalize(file.Dict, flat.Paths),
		List:      file.List,
		Files:     append([]string{root.Path}, merged.Files...),
	}, nil
}

func validateID(id string) error {
	if id == "" || filepath.IsAbs(id) || strings.ContainsRune(id, '\\') {
		return fmt.Errorf("%w: %q", ErrInvalidDocument, id)
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidDocument, id)
		}
	}
	return nil
}

// Specializer cuts one document.
type Specializer struct {
	svc *Service
	id  string
}

// ID returns the document id.
func (d *Specializer) ID() string { return d.id }

// Cut specializes the document for fields, as Service.Cut does.
func (d *Specializer) Cut(ctx context.Context, fields []string) (*Result, error) {
	return d.svc.Cut(ctx, d.id, fields)
}

// Schema returns the full schema of the document.
func (d *Specializer) Schema(ctx context.Context) (*Schema, error) {
	return d.svc.Schema(ctx, d.id)
}
