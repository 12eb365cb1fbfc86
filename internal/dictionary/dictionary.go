// Package dictionary maps caller-facing logical field names to paths in a
// document's query tree.
//
// A dictionary as declared in its file is fragment-relative: the first
// segment of a path may name a fragment ("alarmMeta.level") instead of a
// root field. Normalize rewrites those entries to document-absolute paths
// using the spread sites recorded while flattening.
package dictionary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keywordwei/graphql-loader/internal/fieldpath"
)

// Entry is one logical field. Defined is false for a field that was
// requested through Filter but is not declared; its Path is empty.
type Entry struct {
	Field   string
	Path    string
	Defined bool
}

// Dictionary is an ordered list of entries with unique field names.
type Dictionary []Entry

// Lookup returns the path of field.
func (d Dictionary) Lookup(field string) (string, bool) {
	for _, e := range d {
		if e.Field == field {
			return e.Path, e.Defined
		}
	}
	return "", false
}

// Fields returns the field names in order.
func (d Dictionary) Fields() []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Field
	}
	return out
}

// Paths returns the paths of the defined entries in order.
func (d Dictionary) Paths() []string {
	out := make([]string, 0, len(d))
	for _, e := range d {
		if e.Defined {
			out = append(out, e.Path)
		}
	}
	return out
}

// Missing returns the fields that are not defined.
func (d Dictionary) Missing() []string {
	var out []string
	for _, e := range d {
		if !e.Defined {
			out = append(out, e.Field)
		}
	}
	return out
}

// Filter restricts d to fields, in the order given. A nil fields returns d
// unchanged. A requested field that d does not declare is kept as an
// undefined entry rather than dropped; repeated names keep their first
// position.
func (d Dictionary) Filter(fields []string) Dictionary {
	if fields == nil {
		return d
	}
	out := make(Dictionary, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		p, ok := d.Lookup(f)
		out = append(out, Entry{Field: f, Path: p, Defined: ok})
	}
	return out
}

// Normalize rewrites fragment-relative paths of d to document-absolute ones.
// An entry whose first segment names a fragment in fragments is prefixed
// with that fragment's spread path; any other entry is kept verbatim.
func Normalize(d Dictionary, fragments map[string]string) Dictionary {
	out := make(Dictionary, len(d))
	for i, e := range d {
		out[i] = e
		if !e.Defined {
			continue
		}
		head, rest := fieldpath.SplitHead(e.Path)
		if prefix, ok := fragments[head]; ok {
			out[i].Path = fieldpath.Join(prefix, rest)
		}
	}
	return out
}

// MarshalJSON encodes d as an object with keys in dictionary order.
// Undefined entries are encoded as null.
func (d Dictionary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if !e.Defined {
			buf.WriteString("null")
			continue
		}
		v, err := json.Marshal(e.Path)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnknownFieldError reports requested fields that a dictionary does not
// declare. It is only returned when strict field checking is enabled.
type UnknownFieldError struct {
	Document string
	Fields   []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("document %s does not declare fields: %s", e.Document, strings.Join(e.Fields, ", "))
}
