// Package flatten inlines fragment spreads into a document's query
// operation and records where each fragment was first spread.
//
// Only the first spread site of a fragment is recorded. A fragment used at
// several places keeps the path of its first use, in document order, and
// dictionary entries that go through it resolve against that path.
package flatten

import (
	"slices"

	language "github.com/keywordwei/graphql-loader/internal/language"
	walk "github.com/keywordwei/graphql-loader/internal/walk"
)

// FragmentPaths maps a fragment name to the path of its first spread site.
// A spread directly under the operation is recorded with the empty path.
type FragmentPaths map[string]string

// Result is a flattened operation.
type Result struct {
	// Operation is a copy of the document's query operation without any
	// fragment spread.
	Operation *language.OperationDefinition
	Paths     FragmentPaths
}

// Flatten inlines every fragment spread of doc's query operation.
// When a fragment name is defined more than once, the last definition wins.
func Flatten(doc *language.QueryDocument) (*Result, error) {
	op, err := queryOperation(doc)
	if err != nil {
		return nil, err
	}

	f := &flattener{
		fragments: make(map[string]*language.FragmentDefinition, len(doc.Fragments)),
		paths:     FragmentPaths{},
	}
	for _, def := range doc.Fragments {
		f.fragments[def.Name] = def
	}

	sel, err := walk.Rewrite(op.SelectionSet, f)
	if err != nil {
		return nil, err
	}
	cp := *op
	cp.SelectionSet = sel
	return &Result{Operation: &cp, Paths: f.paths}, nil
}

func queryOperation(doc *language.QueryDocument) (*language.OperationDefinition, error) {
	var found *language.OperationDefinition
	count := 0
	for _, op := range doc.Operations {
		if op.Operation != language.Query {
			continue
		}
		count++
		if found == nil {
			found = op
		}
	}
	if count != 1 {
		return nil, &OperationCountError{Count: count}
	}
	return found, nil
}

type flattener struct {
	fragments map[string]*language.FragmentDefinition
	paths     FragmentPaths
	// expanding holds the fragments whose spreads are being walked.
	expanding []string
}

func (f *flattener) EnterField(*walk.Cursor, *language.Field) walk.Action { return walk.Continue }
func (f *flattener) LeaveField(*walk.Cursor, *language.Field) walk.Action { return walk.Continue }

func (f *flattener) EnterFragmentSpread(c *walk.Cursor, s *language.FragmentSpread) (language.SelectionSet, error) {
	def, ok := f.fragments[s.Name]
	if !ok {
		e := &UndefinedFragmentError{Name: s.Name}
		if s.Position != nil {
			e.File = language.SourceName(s.Position)
			e.Line, e.Column = s.Position.Line, s.Position.Column
		}
		return nil, e
	}
	if i := slices.Index(f.expanding, s.Name); i >= 0 {
		cycle := append(slices.Clone(f.expanding[i:]), s.Name)
		return nil, &CyclicFragmentError{Cycle: cycle}
	}
	if _, seen := f.paths[s.Name]; !seen {
		f.paths[s.Name] = c.Path()
	}
	f.expanding = append(f.expanding, s.Name)

	if len(s.Directives) == 0 {
		return def.SelectionSet, nil
	}
	// Keep @include/@skip and friends by inlining under an untyped inline
	// fragment that carries the spread's directives.
	return language.SelectionSet{&language.InlineFragment{
		Directives:   s.Directives,
		SelectionSet: def.SelectionSet,
		Position:     s.Position,
	}}, nil
}

func (f *flattener) LeaveFragmentSpread(*walk.Cursor, *language.FragmentSpread) {
	f.expanding = f.expanding[:len(f.expanding)-1]
}
