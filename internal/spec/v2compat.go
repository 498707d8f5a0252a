package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// preprocessV2ForCompatibility rewrites Swagger v2 operations so kin-openapi
// converts them into a single JSON request body, which is the only body shape
// the generated client sends:
//   - multiple body parameters are merged into one body parameter whose schema
//     is an object with one property per original parameter;
//   - formData parameters are folded into that same object and the operation is
//     marked as consuming application/json.
//
// It returns possibly-modified YAML bytes, a flag indicating whether
// modifications were made, and any parse/serialization error. On error the
// original bytes are returned with modified=false.
func preprocessV2ForCompatibility(data []byte) ([]byte, bool, error) {
	root, err := parseTree(data)
	if err != nil {
		return data, false, err
	}
	paths := mappingValue(root, "paths")
	if paths == nil {
		return data, false, nil
	}
	modified := false
	eachPair(paths, func(_ string, item *yaml.Node) {
		eachPair(item, func(method string, op *yaml.Node) {
			switch strings.ToLower(method) {
			case "get", "post", "put", "delete", "patch", "options", "head":
			default:
				return
			}
			if foldBodyParams(op) {
				modified = true
			}
		})
	})
	if !modified {
		return data, false, nil
	}
	out, err := yaml.Marshal(root)
	if err != nil {
		return data, false, err
	}
	return out, true, nil
}

// foldBodyParams merges body and formData parameters of op into one body
// parameter. It reports whether op changed.
func foldBodyParams(op *yaml.Node) bool {
	params := mappingValue(op, "parameters")
	if params == nil || params.Kind != yaml.SequenceNode {
		return false
	}
	var bodies, forms, rest []*yaml.Node
	for _, p := range params.Content {
		switch strings.ToLower(scalarString(mappingValue(p, "in"))) {
		case "body":
			bodies = append(bodies, p)
		case "formdata":
			forms = append(forms, p)
		default:
			rest = append(rest, p)
		}
	}
	if len(forms) == 0 && len(bodies) < 2 {
		return false
	}

	props := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var required []string
	for _, p := range append(bodies, forms...) {
		name := scalarString(mappingValue(p, "name"))
		if name == "" {
			name = "field"
		}
		props.Content = append(props.Content, scalarNode(name), schemaFromParam(p))
		if scalarBool(mappingValue(p, "required")) {
			required = append(required, name)
		}
	}
	schema := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	setMappingValue(schema, "type", scalarNode("object"))
	setMappingValue(schema, "properties", props)
	if len(required) > 0 {
		setMappingValue(schema, "required", stringSequence(required))
	}
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	setMappingValue(merged, "in", scalarNode("body"))
	setMappingValue(merged, "name", scalarNode("body"))
	setMappingValue(merged, "schema", schema)

	params.Content = append([]*yaml.Node{merged}, rest...)
	if len(forms) > 0 {
		setMappingValue(op, "consumes", stringSequence([]string{"application/json"}))
	}
	return true
}

// schemaFromParam returns the parameter's schema, or synthesizes one from its
// type/items/format when it is a non-body parameter.
func schemaFromParam(p *yaml.Node) *yaml.Node {
	if s := mappingValue(p, "schema"); s != nil {
		return deepCopy(s)
	}
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	t := scalarString(mappingValue(p, "type"))
	if t == "" || t == "file" {
		t = "string"
	}
	setMappingValue(out, "type", scalarNode(t))
	if it := mappingValue(p, "items"); it != nil {
		setMappingValue(out, "items", deepCopy(it))
	}
	if f := scalarString(mappingValue(p, "format")); f != "" {
		setMappingValue(out, "format", scalarNode(f))
	}
	if d := scalarString(mappingValue(p, "description")); d != "" {
		setMappingValue(out, "description", scalarNode(d))
	}
	return out
}
