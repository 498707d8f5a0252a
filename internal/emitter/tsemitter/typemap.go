package tsemitter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// TSType renders a schema node as a TypeScript type expression. Method
// signatures and response declarations both go through it, so a schema maps
// to the same spelling everywhere.
func TSType(s *genspec.SchemaNode) string {
	if s == nil {
		return "any"
	}
	t := baseType(s)
	if s.Nullable && t != "null" && t != "any" {
		t += " | null"
	}
	return t
}

func baseType(s *genspec.SchemaNode) string {
	switch s.Kind {
	case genspec.KindString:
		return "string"
	case genspec.KindNumber, genspec.KindInteger:
		return "number"
	case genspec.KindBoolean:
		return "boolean"
	case genspec.KindNull:
		return "null"
	case genspec.KindArray:
		elem := TSType(s.Items)
		if hasTopLevelOperator(elem) {
			return "(" + elem + ")[]"
		}
		return elem + "[]"
	case genspec.KindObject:
		if len(s.Properties) == 0 {
			return "Record<string, any>"
		}
		fields := make([]string, 0, len(s.Properties))
		for _, p := range s.Properties {
			fields = append(fields, fmt.Sprintf("%s: %s", tsPropertyKey(p.Name), TSType(p.Schema)))
		}
		return "{ " + strings.Join(fields, "; ") + " }"
	case genspec.KindEnum:
		if len(s.Enum) == 0 {
			return "any"
		}
		lits := make([]string, 0, len(s.Enum))
		for _, v := range s.Enum {
			lits = appendUnique(lits, enumLiteral(v))
		}
		return strings.Join(lits, " | ")
	case genspec.KindOneOf:
		return union(s.OneOf)
	case genspec.KindAnyOf:
		return union(s.AnyOf)
	case genspec.KindAllOf:
		// Shallow: branch types side by side, fields are not merged.
		parts := make([]string, 0, len(s.AllOf))
		for _, b := range s.AllOf {
			parts = append(parts, "("+TSType(b)+")")
		}
		return strings.Join(parts, " & ")
	default:
		return "any"
	}
}

func union(branches []*genspec.SchemaNode) string {
	if len(branches) == 0 {
		return "any"
	}
	var parts []string
	for _, b := range branches {
		t := TSType(b)
		if strings.Contains(t, " & ") {
			t = "(" + t + ")"
		}
		parts = appendUnique(parts, t)
	}
	return strings.Join(parts, " | ")
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// enumLiteral renders one enum member as a quoted string literal, whatever
// its type in the document: [1, 2] becomes "1" | "2".
func enumLiteral(v any) string {
	var text string
	switch x := v.(type) {
	case nil:
		text = "null"
	case string:
		text = x
	case float64:
		text = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		text = fmt.Sprint(x)
	}
	b, _ := json.Marshal(text)
	return string(b)
}

// hasTopLevelOperator reports whether t contains | or & outside brackets.
func hasTopLevelOperator(t string) bool {
	depth := 0
	for _, r := range t {
		switch r {
		case '(', '{', '[', '<':
			depth++
		case ')', '}', ']', '>':
			depth--
		case '|', '&':
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

// usesAllOf reports whether s or any descendant is an allOf node.
func usesAllOf(s *genspec.SchemaNode) bool {
	if s == nil {
		return false
	}
	if s.Kind == genspec.KindAllOf {
		return true
	}
	if usesAllOf(s.Items) {
		return true
	}
	for _, p := range s.Properties {
		if usesAllOf(p.Schema) {
			return true
		}
	}
	for _, group := range [][]*genspec.SchemaNode{s.OneOf, s.AnyOf} {
		for _, b := range group {
			if usesAllOf(b) {
				return true
			}
		}
	}
	return false
}

// tsPropertyKey returns a properly quoted TypeScript property key. Valid
// identifiers are returned as-is.
func tsPropertyKey(name string) string {
	if isIdentifier(name) {
		return name
	}
	b, _ := json.Marshal(name)
	return string(b)
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
