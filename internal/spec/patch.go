package spec

import (
	"fmt"
	"strings"

	yamlpath "github.com/vmware-labs/yaml-jsonpath/pkg/yamlpath"
	"gopkg.in/yaml.v3"
)

// PatchKind selects what a PatchRule does.
type PatchKind string

const (
	// PatchCopyResponse replaces the target's JSON response schema with a copy
	// of the source operation's response schema.
	PatchCopyResponse PatchKind = "copy-response"
	// PatchRequireBody sets the required list of the target's JSON request body.
	PatchRequireBody PatchKind = "require-body"
	// PatchRequireParams marks the named parameters of the target as required.
	PatchRequireParams PatchKind = "require-params"
)

// PatchRule is one structural correction applied after dereferencing. Rules
// are keyed by (path, method) and fail when their target is missing, so an
// upstream document change never yields a silently wrong patch.
type PatchRule struct {
	Kind   PatchKind  `yaml:"kind"`
	Path   string     `yaml:"path"`
	Method HttpMethod `yaml:"method"`

	// copy-response
	FromPath   string     `yaml:"from,omitempty"`
	FromMethod HttpMethod `yaml:"fromMethod,omitempty"`

	// require-body, require-params
	Names []string `yaml:"names,omitempty"`
}

func (r PatchRule) String() string {
	switch r.Kind {
	case PatchCopyResponse:
		return fmt.Sprintf("%s %s %s <- %s %s", r.Kind, r.Method, r.Path, r.FromMethod, r.FromPath)
	default:
		return fmt.Sprintf("%s %s %s [%s]", r.Kind, r.Method, r.Path, strings.Join(r.Names, ","))
	}
}

// KoiosPatchRules returns the corrections the upstream Koios document needs.
// The cached account endpoint documents its response wrongly; it returns the
// same rows as /account_info.
func KoiosPatchRules() []PatchRule {
	return []PatchRule{
		{
			Kind:       PatchCopyResponse,
			Path:       "/account_info_cached",
			Method:     POST,
			FromPath:   "/account_info",
			FromMethod: POST,
		},
	}
}

// ApplyPatches applies rules in order. The first failing rule aborts with a
// *SpecError of Code PatchError.
func ApplyPatches(doc *Document, rules []PatchRule) error {
	for _, r := range rules {
		if err := r.Apply(doc); err != nil {
			return err
		}
	}
	return nil
}

// Apply mutates doc according to the rule.
func (r PatchRule) Apply(doc *Document) error {
	if doc == nil || doc.Root == nil {
		return r.fail(doc, "nil document")
	}
	target, err := r.operation(doc, r.Path, r.Method)
	if err != nil {
		return err
	}
	switch r.Kind {
	case PatchCopyResponse:
		src, err := r.operation(doc, r.FromPath, r.FromMethod)
		if err != nil {
			return err
		}
		from, _ := responseSchema(src)
		if from == nil {
			return r.fail(doc, fmt.Sprintf("source %s %s has no JSON response schema", r.FromMethod, r.FromPath))
		}
		to, _ := responseSchema(target)
		if to == nil {
			return r.fail(doc, "target has no JSON response schema")
		}
		*to = *deepCopy(from)
	case PatchRequireBody:
		body := requestBodySchema(target)
		if body == nil {
			return r.fail(doc, "target has no JSON request body schema")
		}
		props := mappingValue(body, "properties")
		for _, name := range r.Names {
			if mappingValue(props, name) == nil {
				return r.fail(doc, fmt.Sprintf("request body has no property %q", name))
			}
		}
		setMappingValue(body, "required", stringSequence(r.Names))
	case PatchRequireParams:
		params, err := r.find(doc, fmt.Sprintf("$.paths['%s'].%s.parameters[*]", r.Path, r.Method))
		if err != nil {
			return err
		}
		shared, err := r.find(doc, fmt.Sprintf("$.paths['%s'].parameters[*]", r.Path))
		if err != nil {
			return err
		}
		params = append(params, shared...)
		for _, name := range r.Names {
			found := false
			for _, p := range params {
				if scalarString(mappingValue(p, "name")) == name {
					setMappingValue(p, "required", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
					found = true
				}
			}
			if !found {
				return r.fail(doc, fmt.Sprintf("no parameter %q", name))
			}
		}
	default:
		return r.fail(doc, fmt.Sprintf("unknown patch kind %q", r.Kind))
	}
	return nil
}

// operation locates the operation object for (path, method).
func (r PatchRule) operation(doc *Document, path string, method HttpMethod) (*yaml.Node, error) {
	nodes, err := r.find(doc, fmt.Sprintf("$.paths['%s'].%s", path, method))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, r.fail(doc, fmt.Sprintf("operation %s %s not found", method, path))
	}
	return nodes[0], nil
}

func (r PatchRule) find(doc *Document, expr string) ([]*yaml.Node, error) {
	if strings.ContainsAny(r.Path+r.FromPath, "'") {
		return nil, r.fail(doc, "path must not contain a single quote")
	}
	p, err := yamlpath.NewPath(expr)
	if err != nil {
		return nil, &SpecError{Code: PatchError, Message: fmt.Sprintf("%s: %v", r, err), Location: doc.Location, Cause: err}
	}
	nodes, err := p.Find(doc.Root)
	if err != nil {
		return nil, &SpecError{Code: PatchError, Message: fmt.Sprintf("%s: %v", r, err), Location: doc.Location, Cause: err}
	}
	return nodes, nil
}

func (r PatchRule) fail(doc *Document, msg string) error {
	loc := ""
	if doc != nil {
		loc = doc.Location
	}
	return &SpecError{
		Code:        PatchError,
		Message:     fmt.Sprintf("%s: %s", r, msg),
		Location:    loc,
		JSONPointer: "#/paths/" + strings.ReplaceAll(strings.ReplaceAll(r.Path, "~", "~0"), "/", "~1") + "/" + string(r.Method),
	}
}
