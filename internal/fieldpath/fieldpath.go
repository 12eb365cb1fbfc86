// Package fieldpath handles dot-joined field paths such as
// "alarm_rule_list.relation_entitys.meta.name".
//
// Paths name positions in a flattened selection tree, relative to the
// operation root. Dictionary paths may additionally carry result-query
// syntax (array indexes, "#" wildcards, "|@modifier" suffixes) that is
// meaningful to the consumer of the response but not to the query itself;
// Canonical strips it for matching.
package fieldpath

import "strings"

// Separator joins path segments.
const Separator = "."

const modifierMarker = "|@"

// Join appends rest to prefix. Either side may be empty.
func Join(prefix, rest string) string {
	switch {
	case prefix == "":
		return rest
	case rest == "":
		return prefix
	}
	return prefix + Separator + rest
}

// SplitHead splits p at its first separator.
func SplitHead(p string) (head, rest string) {
	head, rest, _ = strings.Cut(p, Separator)
	return head, rest
}

// Canonical reduces a raw dictionary path to the field path it selects.
// Everything from the first "|@" outside a query condition is dropped, then
// segments that are array indexes ("0") or wildcards ("#", "#(...)",
// "#(...)#") are removed. A condition is one segment even when it contains
// dots:
//
//	list.0.first             -> list.first
//	list.#.first             -> list.first
//	list.#(a.b==1)#.first    -> list.first
//	children|@reverse        -> children
func Canonical(raw string) string {
	segs := segments(raw)
	out := segs[:0]
	for _, s := range segs {
		if s == "" || isIndex(s) || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, Separator)
}

// segments splits raw at separators that are outside parentheses, quotes
// and backslash escapes, stopping at the first top-level "|@".
func segments(raw string) []string {
	var (
		segs  []string
		start int
		depth int
		quote bool
	)
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case c == '\\':
			i++
		case quote:
			if c == '"' {
				quote = false
			}
		case c == '"':
			quote = true
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case strings.HasPrefix(raw[i:], modifierMarker):
			return append(segs, raw[start:i])
		case c == Separator[0]:
			segs = append(segs, raw[start:i])
			start = i + 1
		}
	}
	return append(segs, raw[start:])
}

// CanonicalSet canonicalizes raws and drops duplicates, keeping first-seen order.
func CanonicalSet(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		c := Canonical(r)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func isIndex(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
