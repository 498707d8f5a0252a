package tsemitter

import (
	"encoding/json"
	"fmt"
	"strings"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// renderTypes produces src/types.ts: for every operation a
// "<Name>Response" array alias and an "I<Name>" element declaration.
// A missing or malformed response yields a placeholder and a diagnostic;
// it never stops the other operations.
func renderTypes(named []namedOperation) (string, []Diagnostic) {
	var b strings.Builder
	var diags []Diagnostic
	b.WriteString(generatedHeader)
	for _, n := range named {
		decl, d := typeDeclaration(n)
		diags = append(diags, d...)
		b.WriteString("\n")
		b.WriteString(decl)
	}
	return b.String(), diags
}

func typeDeclaration(n namedOperation) (string, []Diagnostic) {
	var diags []Diagnostic
	warn := func(msg string) {
		diags = append(diags, Diagnostic{Stage: StageEmit, Operation: n.Op.ID(), Severity: SeverityWarning, Message: msg})
	}

	var b strings.Builder
	iface := "I" + n.Name
	resp := n.Op.Response
	if resp == nil {
		warn("no response schema; emitted an empty placeholder")
		b.WriteString("// no response schema\n")
		fmt.Fprintf(&b, "export type %sResponse = %s[];\n\n", n.Name, iface)
		fmt.Fprintf(&b, "export interface %s {}\n", iface)
		return b.String(), diags
	}

	elem := resp
	if resp.Kind == genspec.KindArray {
		elem = resp.Items
	} else {
		warn(fmt.Sprintf("response is %s, not an array; its schema is used as the element type", resp.Kind))
	}
	if elem == nil {
		elem = &genspec.SchemaNode{Kind: genspec.KindUnknown}
	}
	if usesAllOf(elem) {
		warn("allOf rendered as an intersection of branch types; fields are not merged")
	}

	if n.Op.Summary != "" {
		b.WriteString(jsDoc("", []string{n.Op.Summary}))
	}
	fmt.Fprintf(&b, "export type %sResponse = %s[];\n\n", n.Name, iface)

	if elem.Description != "" {
		b.WriteString(jsDoc("", strings.Split(strings.TrimSpace(elem.Description), "\n")))
	}
	if elem.Kind != genspec.KindObject || len(elem.Properties) == 0 {
		fmt.Fprintf(&b, "export type %s = %s;\n", iface, TSType(elem))
		return b.String(), diags
	}
	fmt.Fprintf(&b, "export interface %s {\n", iface)
	for _, p := range elem.Properties {
		b.WriteString(propertyJSDoc(p.Schema))
		fmt.Fprintf(&b, "  %s: %s;\n", tsPropertyKey(p.Name), TSType(p.Schema))
	}
	b.WriteString("}\n")
	return b.String(), diags
}

func propertyJSDoc(s *genspec.SchemaNode) string {
	if s == nil {
		return ""
	}
	var lines []string
	if s.Description != "" {
		lines = append(lines, strings.Split(strings.TrimSpace(s.Description), "\n")...)
	}
	if s.Example != nil {
		if ex, err := json.Marshal(s.Example); err == nil {
			lines = append(lines, "@example "+string(ex))
		}
	}
	return jsDoc("  ", lines)
}
