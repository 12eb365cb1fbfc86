// Package prune removes every field of a flattened operation that is not
// needed to reach a set of required paths.
//
// A required path keeps its field verbatim, children included. Any other
// field survives only while it still has children after pruning, so the
// result contains exactly the required fields and their ancestors.
package prune

import (
	"errors"
	"fmt"

	language "github.com/keywordwei/graphql-loader/internal/language"
	walk "github.com/keywordwei/graphql-loader/internal/walk"
)

// ErrEmptySelection is returned when no field of the operation survives.
var ErrEmptySelection = errors.New("no field of the operation is required")

// SpreadError reports a fragment spread in an operation that was expected
// to be flattened.
type SpreadError struct {
	Name string
}

func (e *SpreadError) Error() string {
	return fmt.Sprintf("unexpected fragment spread %s in flattened operation", e.Name)
}

// Operation returns a copy of op restricted to required, a set of canonical
// field paths. op is not modified.
func Operation(op *language.OperationDefinition, required []string) (*language.OperationDefinition, error) {
	p := &pruner{required: make(map[string]struct{}, len(required))}
	for _, r := range required {
		p.required[r] = struct{}{}
	}
	sel, err := walk.Rewrite(op.SelectionSet, p)
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, ErrEmptySelection
	}
	cp := *op
	cp.SelectionSet = sel
	return &cp, nil
}

type pruner struct {
	required map[string]struct{}
}

func (p *pruner) EnterField(c *walk.Cursor, _ *language.Field) walk.Action {
	if _, ok := p.required[c.Path()]; ok {
		return walk.Skip
	}
	return walk.Continue
}

func (p *pruner) LeaveField(_ *walk.Cursor, f *language.Field) walk.Action {
	if len(f.SelectionSet) == 0 {
		return walk.Remove
	}
	return walk.Continue
}

func (p *pruner) EnterFragmentSpread(_ *walk.Cursor, s *language.FragmentSpread) (language.SelectionSet, error) {
	return nil, &SpreadError{Name: s.Name}
}

func (p *pruner) LeaveFragmentSpread(*walk.Cursor, *language.FragmentSpread) {}
