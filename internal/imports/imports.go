// Package imports merges a GraphQL document with the fragment files it
// pulls in through leading "#import" comment directives.
//
// Resolution is depth-first in directive order: an imported file contributes
// its own definitions first, then those of its imports, resolved relative to
// its own directory. Each file is loaded at most once per document; a repeat
// import is skipped and reported through an events.ImportSkipped event.
package imports

import (
	"context"
	"fmt"
	"path/filepath"

	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	language "github.com/keywordwei/graphql-loader/internal/language"
	source "github.com/keywordwei/graphql-loader/internal/source"
)

// Result is a root document merged with everything it imports.
type Result struct {
	Document *language.QueryDocument
	// Files lists the imported files in load order; the root is not included.
	Files []string
	// Skipped lists repeat imports that were ignored.
	Skipped []string
}

type resolver struct {
	src    source.Source
	loaded map[string]bool
	res    *Result
}

// Resolve parses root and appends the operations and fragments of every
// transitively imported file to it.
func Resolve(ctx context.Context, src source.Source, root *source.Document) (*Result, error) {
	doc, err := language.ParseQuery(root.Path, root.Text)
	if err != nil {
		return nil, err
	}
	r := &resolver{
		src:    src,
		loaded: map[string]bool{},
		res:    &Result{Document: doc},
	}
	if err := r.expand(ctx, root); err != nil {
		return nil, err
	}
	return r.res, nil
}

func (r *resolver) expand(ctx context.Context, from *source.Document) error {
	paths, err := Directives(from.Path, from.Text)
	if err != nil {
		return err
	}
	for _, rel := range paths {
		p := resolvePath(from.Dir(), rel)
		if r.loaded[p] {
			r.res.Skipped = append(r.res.Skipped, p)
			eventbus.Publish(ctx, events.ImportSkipped{Path: p, From: from.Path})
			continue
		}
		r.loaded[p] = true

		imported, err := source.Load(ctx, r.src, p)
		if err != nil {
			return fmt.Errorf("import from %s: %w", from.Path, err)
		}
		doc, err := language.ParseQuery(p, imported.Text)
		if err != nil {
			return err
		}
		r.res.Files = append(r.res.Files, p)
		r.res.Document.Operations = append(r.res.Document.Operations, doc.Operations...)
		r.res.Document.Fragments = append(r.res.Document.Fragments, doc.Fragments...)

		if err := r.expand(ctx, imported); err != nil {
			return err
		}
	}
	return nil
}

func resolvePath(dir, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(dir, rel)
}
