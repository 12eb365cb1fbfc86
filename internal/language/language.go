package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. name is reported in error
// positions and is usually the file the source was read from.
func ParseQuery(name, source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// PrintOperation renders op as a standalone query document.
func PrintOperation(op *OperationDefinition) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	})
	return buf.String()
}

// SourceName returns the file name a node was parsed from, if known.
func SourceName(pos *Position) string {
	if pos == nil || pos.Src == nil {
		return ""
	}
	return pos.Src.Name
}
