package flatten

import (
	"fmt"
	"strings"
)

// OperationCountError reports a document that does not contain exactly one
// query operation.
type OperationCountError struct {
	Count int
}

func (e *OperationCountError) Error() string {
	return fmt.Sprintf("document must define exactly one query operation, found %d", e.Count)
}

// UndefinedFragmentError reports a spread of a fragment that no merged file
// defines.
type UndefinedFragmentError struct {
	Name   string
	File   string
	Line   int
	Column int
}

func (e *UndefinedFragmentError) Error() string {
	msg := fmt.Sprintf("fragment %s is not defined", e.Name)
	if e.File != "" {
		msg += fmt.Sprintf(" %s:%d:%d", e.File, e.Line, e.Column)
	}
	return msg
}

// CyclicFragmentError reports a fragment that spreads itself, directly or
// through other fragments. Cycle lists the spread chain, starting and ending
// with the same fragment.
type CyclicFragmentError struct {
	Cycle []string
}

func (e *CyclicFragmentError) Error() string {
	return "fragment cycle: " + strings.Join(e.Cycle, " -> ")
}
