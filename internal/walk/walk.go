// Package walk rewrites GraphQL selection sets with an enter/leave visitor.
//
// The walker tracks the field-name path of the node being visited, relative
// to the root selection set, and exposes it through a Cursor. Inline
// fragments do not contribute to the path. Fragment spreads are handed to the
// visitor, which supplies the selections that replace them; the replacement
// is walked in place, under the path of the spread site, and spliced into the
// parent selection set.
//
// Input nodes are never modified. Visited fields and inline fragments are
// copied; skipped subtrees are shared with the input.
package walk

import (
	"strings"

	"github.com/keywordwei/graphql-loader/internal/fieldpath"
	language "github.com/keywordwei/graphql-loader/internal/language"
)

// Action tells the walker what to do with a field.
type Action int

const (
	// Continue descends into the field (on enter) or keeps it (on leave).
	Continue Action = iota
	// Skip keeps the field and its whole subtree as is, without visiting it.
	// Only meaningful on enter; LeaveField is not called for skipped fields.
	Skip
	// Remove drops the field from its parent.
	Remove
)

// Visitor receives walk callbacks.
type Visitor interface {
	EnterField(c *Cursor, f *language.Field) Action
	// LeaveField receives the rewritten field. Its SelectionSet is nil if
	// every child selection was removed.
	LeaveField(c *Cursor, f *language.Field) Action
	// EnterFragmentSpread returns the selections replacing s.
	EnterFragmentSpread(c *Cursor, s *language.FragmentSpread) (language.SelectionSet, error)
	// LeaveFragmentSpread is called once the replacement of s has been walked.
	LeaveFragmentSpread(c *Cursor, s *language.FragmentSpread)
}

// Cursor is the walk context handed to visitors.
type Cursor struct {
	stack []string
}

// Path returns the dot-joined path of the current field. Inside EnterField
// and LeaveField it includes the field itself; at a fragment spread it is the
// path of the field enclosing the spread.
func (c *Cursor) Path() string { return strings.Join(c.stack, fieldpath.Separator) }

// Depth returns the number of fields on the current path.
func (c *Cursor) Depth() int { return len(c.stack) }

// Rewrite walks set with v and returns the rewritten selection set.
func Rewrite(set language.SelectionSet, v Visitor) (language.SelectionSet, error) {
	c := &Cursor{}
	return c.selectionSet(set, v)
}

func (c *Cursor) selectionSet(set language.SelectionSet, v Visitor) (language.SelectionSet, error) {
	out := make(language.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch n := sel.(type) {
		case *language.Field:
			f, err := c.field(n, v)
			if err != nil {
				return nil, err
			}
			if f != nil {
				out = append(out, f)
			}
		case *language.InlineFragment:
			children, err := c.selectionSet(n.SelectionSet, v)
			if err != nil {
				return nil, err
			}
			if len(children) == 0 && len(n.SelectionSet) > 0 {
				continue
			}
			cp := *n
			cp.SelectionSet = children
			out = append(out, &cp)
		case *language.FragmentSpread:
			repl, err := v.EnterFragmentSpread(c, n)
			if err != nil {
				return nil, err
			}
			children, err := c.selectionSet(repl, v)
			if err != nil {
				return nil, err
			}
			v.LeaveFragmentSpread(c, n)
			out = append(out, children...)
		}
	}
	return out, nil
}

func (c *Cursor) field(f *language.Field, v Visitor) (*language.Field, error) {
	c.stack = append(c.stack, f.Name)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	switch v.EnterField(c, f) {
	case Skip:
		return f, nil
	case Remove:
		return nil, nil
	}

	cp := *f
	if len(f.SelectionSet) > 0 {
		children, err := c.selectionSet(f.SelectionSet, v)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			children = nil
		}
		cp.SelectionSet = children
	}
	if v.LeaveField(c, &cp) == Remove {
		return nil, nil
	}
	return &cp, nil
}

// Leaves returns the paths of all fields without a selection set, in
// document order. Spreads are not followed.
func Leaves(set language.SelectionSet) []string {
	var out []string
	var visit func(prefix string, set language.SelectionSet)
	visit = func(prefix string, set language.SelectionSet) {
		for _, sel := range set {
			switch n := sel.(type) {
			case *language.Field:
				p := fieldpath.Join(prefix, n.Name)
				if len(n.SelectionSet) == 0 {
					out = append(out, p)
					continue
				}
				visit(p, n.SelectionSet)
			case *language.InlineFragment:
				visit(prefix, n.SelectionSet)
			}
		}
	}
	visit("", set)
	return out
}
