package imports

import (
	"fmt"
	"strings"
)

const directive = "import"

// DirectiveError reports an #import line without a path.
type DirectiveError struct {
	File string
	Line int
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s:%d: #import directive without a path", e.File, e.Line)
}

// Directives returns the paths named by the #import lines at the top of
// text, in order. Scanning stops at the first line that is neither empty
// nor a comment. A directive starts at column 0:
//
//	#import "./fragments/meta.gql"
//	#import './fragments/staff.gql'
func Directives(file, text string) ([]string, error) {
	var paths []string
	for i, line := range splitLines(text) {
		if line == "" {
			continue
		}
		if line[0] != '#' {
			break
		}
		words := strings.Split(line[1:], " ")
		if words[0] != directive {
			continue
		}
		if len(words) < 2 || unquote(words[1]) == "" {
			return nil, &DirectiveError{File: file, Line: i + 1}
		}
		paths = append(paths, unquote(words[1]))
	}
	return paths, nil
}

// splitLines splits on \r\n, \r and \n, keeping empty lines so that line
// numbers stay meaningful.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// unquote strips one leading and one trailing quote character.
func unquote(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if s != "" && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}
