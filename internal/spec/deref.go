package spec

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxExpansions bounds the total number of $ref inlinings in one document.
const maxExpansions = 1 << 20

// Dereference replaces every $ref node in doc with a deep copy of the subtree
// it points to, until no reference remains anywhere in the tree. Each inlined
// copy is independent, so later edits to one operation never leak into
// another that referenced the same component.
//
// Only internal pointers ("#/...") are supported. A dangling or external
// pointer, a cycle, or runaway expansion yields a *SpecError with Code
// DereferenceError.
func Dereference(doc *Document) error {
	if doc == nil || doc.Root == nil {
		return &SpecError{Code: DereferenceError, Message: "nil document"}
	}
	d := &dereferencer{source: deepCopy(doc.Root), location: doc.Location}
	root, err := d.expand(doc.Root, nil)
	if err != nil {
		return err
	}
	doc.Root = root
	return nil
}

type dereferencer struct {
	// source is a pristine snapshot that pointers are resolved against.
	source     *yaml.Node
	location   string
	expansions int
}

func (d *dereferencer) expand(n *yaml.Node, chain []string) (*yaml.Node, error) {
	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return n, nil
		}
		return d.expand(deepCopy(n.Alias), chain)
	case yaml.MappingNode:
		if ref, ok := refOf(n); ok {
			return d.inline(n, ref, chain)
		}
		for i := 1; i < len(n.Content); i += 2 {
			v, err := d.expand(n.Content[i], chain)
			if err != nil {
				return nil, err
			}
			n.Content[i] = v
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for i, c := range n.Content {
			v, err := d.expand(c, chain)
			if err != nil {
				return nil, err
			}
			n.Content[i] = v
		}
	}
	return n, nil
}

func (d *dereferencer) inline(n *yaml.Node, ref string, chain []string) (*yaml.Node, error) {
	for _, seen := range chain {
		if seen == ref {
			return nil, d.fail(ref, fmt.Sprintf("cyclic reference %s", strings.Join(append(chain, ref), " -> ")))
		}
	}
	d.expansions++
	if d.expansions > maxExpansions {
		return nil, d.fail(ref, fmt.Sprintf("dereferencing did not terminate after %d expansions", maxExpansions))
	}
	target, err := d.resolve(ref)
	if err != nil {
		return nil, d.fail(ref, err.Error())
	}
	cp := deepCopy(target)
	// Keys next to $ref (e.g. description) override the inlined copy.
	if cp.Kind == yaml.MappingNode {
		eachPair(n, func(k string, v *yaml.Node) {
			if k != "$ref" {
				setMappingValue(cp, k, deepCopy(v))
			}
		})
	}
	next := make([]string, len(chain), len(chain)+1)
	copy(next, chain)
	return d.expand(cp, append(next, ref))
}

func (d *dereferencer) fail(ref, msg string) error {
	return &SpecError{
		Code:        DereferenceError,
		Message:     msg,
		Location:    d.location,
		JSONPointer: ref,
	}
}

// resolve walks an internal JSON pointer from the document root.
func (d *dereferencer) resolve(ref string) (*yaml.Node, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, fmt.Errorf("external reference %q is not supported", ref)
	}
	ptr := strings.TrimPrefix(ref, "#")
	if ptr == "" {
		return d.source, nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, fmt.Errorf("malformed reference %q", ref)
	}
	cur := d.source
	for _, raw := range strings.Split(ptr[1:], "/") {
		tok, err := unescapePointerToken(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed reference %q: %v", ref, err)
		}
		if cur.Kind == yaml.AliasNode && cur.Alias != nil {
			cur = cur.Alias
		}
		switch cur.Kind {
		case yaml.MappingNode:
			next := mappingValue(cur, tok)
			if next == nil {
				return nil, fmt.Errorf("unresolved reference %q: no key %q", ref, tok)
			}
			cur = next
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.Content) {
				return nil, fmt.Errorf("unresolved reference %q: bad index %q", ref, tok)
			}
			cur = cur.Content[idx]
		default:
			return nil, fmt.Errorf("unresolved reference %q: cannot descend into scalar", ref)
		}
	}
	if cur.Kind == yaml.AliasNode && cur.Alias != nil {
		cur = cur.Alias
	}
	return cur, nil
}

func unescapePointerToken(tok string) (string, error) {
	tok, err := url.PathUnescape(tok)
	if err != nil {
		return "", err
	}
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~"), nil
}

// refOf reports the pointer of a reference node.
func refOf(n *yaml.Node) (string, bool) {
	v := mappingValue(n, "$ref")
	if v == nil || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

// containsRef reports whether any $ref node remains under n.
func containsRef(n *yaml.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == yaml.MappingNode {
		if _, ok := refOf(n); ok {
			return true
		}
	}
	for _, c := range n.Content {
		if containsRef(c) {
			return true
		}
	}
	return false
}
