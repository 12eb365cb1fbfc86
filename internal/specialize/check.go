package specialize

import (
	"context"
	"fmt"
	"strings"

	"github.com/keywordwei/graphql-loader/internal/fieldpath"
	language "github.com/keywordwei/graphql-loader/internal/language"
)

// Failure is a document that did not pass Check.
type Failure struct {
	Document string
	Err      error
}

// CheckError collects every failed document of a Check.
type CheckError struct {
	Failures []Failure
}

func (e *CheckError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s) failed", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s: %v", f.Document, f.Err)
	}
	return b.String()
}

// Unwrap returns the individual failures.
func (e *CheckError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// UnreachablePathError reports dictionary or list paths that do not name a
// field of the flattened operation.
type UnreachablePathError struct {
	Document string
	Paths    []string
}

func (e *UnreachablePathError) Error() string {
	return fmt.Sprintf("document %s: paths do not select any field: %s", e.Document, strings.Join(e.Paths, ", "))
}

// Check builds the schema of every listed document, stores it in the cache
// and verifies that its dictionary and list paths select fields of the
// query. It returns *CheckError listing every document that failed.
func (s *Service) Check(ctx context.Context) error {
	ids, err := s.Documents()
	if err != nil {
		return err
	}
	return s.CheckDocuments(ctx, ids...)
}

// CheckDocuments is Check for the given ids.
func (s *Service) CheckDocuments(ctx context.Context, ids ...string) error {
	var failures []Failure
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc, err := s.Schema(ctx, id)
		if err == nil {
			err = sc.Reachable()
		}
		if err != nil {
			failures = append(failures, Failure{Document: id, Err: err})
		}
	}
	if len(failures) > 0 {
		return &CheckError{Failures: failures}
	}
	return nil
}

// Reachable returns *UnreachablePathError if a dictionary or list path of s
// does not select a field of its operation.
func (s *Schema) Reachable() error {
	fields := fieldPaths(s.Operation.SelectionSet)
	var bad []string
	for _, raw := range append(s.Dict.Paths(), s.List) {
		if _, ok := fields[fieldpath.Canonical(raw)]; !ok {
			bad = append(bad, raw)
		}
	}
	if len(bad) > 0 {
		return &UnreachablePathError{Document: s.Document, Paths: bad}
	}
	return nil
}

// fieldPaths returns the path of every field in set, leaves and branches.
func fieldPaths(set language.SelectionSet) map[string]struct{} {
	out := map[string]struct{}{}
	var visit func(prefix string, set language.SelectionSet)
	visit = func(prefix string, set language.SelectionSet) {
		for _, sel := range set {
			switch n := sel.(type) {
			case *language.Field:
				p := fieldpath.Join(prefix, n.Name)
				out[p] = struct{}{}
				visit(p, n.SelectionSet)
			case *language.InlineFragment:
				visit(prefix, n.SelectionSet)
			}
		}
	}
	visit("", set)
	return out
}
