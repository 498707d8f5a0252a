package spec

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// BuildOption configures how operations are flattened from a document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	skipPaths   []string
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		if len(tags) == 0 {
			return
		}
		if c.includeTags == nil {
			c.includeTags = make(map[string]struct{}, len(tags))
		}
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			c.includeTags[t] = struct{}{}
		}
	}
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		if len(tags) == 0 {
			return
		}
		if c.excludeTags == nil {
			c.excludeTags = make(map[string]struct{}, len(tags))
		}
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			c.excludeTags[t] = struct{}{}
		}
	}
}

// WithMethods keeps only operations using one of the provided HTTP methods.
// Methods other than get and post are never flattened.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		if len(methods) == 0 {
			return
		}
		if c.methods == nil {
			c.methods = make(map[HttpMethod]struct{}, len(methods))
		}
		for _, m := range methods {
			c.methods[HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only operations whose path matches at least one of the
// provided regular expressions.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				// never matches
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithSkipPaths drops every operation under the given paths. Entries are exact
// paths or path.Match globs ("/ogmios*").
func WithSkipPaths(paths []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				c.skipPaths = append(c.skipPaths, p)
			}
		}
	}
}

// Info is the document-level metadata the emitters carry into package files.
type Info struct {
	Title       string
	Version     string
	Description string
	Servers     []string
}

// DocumentInfo reads the info and servers sections of doc.
func DocumentInfo(doc *Document) Info {
	if doc == nil {
		return Info{}
	}
	info := mappingValue(doc.Root, "info")
	out := Info{
		Title:       strings.TrimSpace(scalarString(mappingValue(info, "title"))),
		Version:     strings.TrimSpace(scalarString(mappingValue(info, "version"))),
		Description: strings.TrimSpace(scalarString(mappingValue(info, "description"))),
	}
	if servers := mappingValue(doc.Root, "servers"); servers != nil && servers.Kind == yaml.SequenceNode {
		for _, s := range servers.Content {
			if u := strings.TrimSpace(scalarString(mappingValue(s, "url"))); u != "" {
				out.Servers = append(out.Servers, u)
			}
		}
	}
	return out
}

// BuildOperations flattens the paths of a dereferenced document into one
// OperationRecord per (path, method) pair, in document order. Path-level
// parameters come first; an operation-level parameter with the same in+name
// replaces the shared one in place.
func BuildOperations(doc *Document, opts ...BuildOption) ([]OperationRecord, error) {
	if doc == nil || doc.Root == nil {
		return nil, fmt.Errorf("nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	paths := mappingValue(doc.Root, "paths")
	if paths == nil {
		return nil, nil
	}
	if paths.Kind != yaml.MappingNode {
		return nil, &SpecError{Code: ValidationError, Message: "paths is not a mapping", Location: doc.Location, JSONPointer: "#/paths"}
	}
	if containsRef(paths) {
		return nil, &SpecError{Code: DereferenceError, Message: "document still contains $ref nodes; dereference it first", Location: doc.Location}
	}

	var ops []OperationRecord
	var err error
	eachPair(paths, func(p string, item *yaml.Node) {
		if err != nil || item.Kind != yaml.MappingNode {
			return
		}
		if skipPath(p, cfg) || !allowByPath(p, cfg) {
			return
		}
		shared := parameters(mappingValue(item, "parameters"))
		for _, m := range recognizedMethods {
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[m]; !ok {
					continue
				}
			}
			op := mappingValue(item, string(m))
			if op == nil {
				continue
			}
			if op.Kind != yaml.MappingNode {
				err = &SpecError{Code: ValidationError, Message: fmt.Sprintf("%s %s: operation is not a mapping", m, p), Location: doc.Location}
				return
			}
			rec := buildOperation(p, m, op, shared)
			if !allowByTags(rec.Tags, cfg) {
				continue
			}
			ops = append(ops, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// rawParameter is a parameter whose schema has not been converted yet.
type rawParameter struct {
	Parameter
	schema *yaml.Node
}

func buildOperation(p string, m HttpMethod, op *yaml.Node, shared []rawParameter) OperationRecord {
	rec := OperationRecord{
		Path:        p,
		Method:      m,
		Summary:     strings.TrimSpace(scalarString(mappingValue(op, "summary"))),
		Description: strings.TrimSpace(scalarString(mappingValue(op, "description"))),
	}
	warn := func(format string, args ...any) {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf(format, args...))
	}

	if tags := mappingValue(op, "tags"); tags != nil && tags.Kind == yaml.SequenceNode {
		for _, t := range tags.Content {
			if s := strings.TrimSpace(scalarString(t)); s != "" {
				rec.Tags = append(rec.Tags, s)
			}
		}
	}

	for _, raw := range mergeParameters(shared, parameters(mappingValue(op, "parameters"))) {
		p := raw.Parameter
		p.Schema = toSchemaNodeWarn(raw.schema, warn)
		rec.Parameters = append(rec.Parameters, p)
	}

	if body := requestBodySchema(op); body != nil {
		rec.RequestBody = toSchemaNodeWarn(body, warn)
		if rec.RequestBody.Kind == KindObject {
			for _, prop := range rec.RequestBody.Properties {
				rec.BodyProperties = append(rec.BodyProperties, BodyProperty{
					Name:     prop.Name,
					Required: rec.RequestBody.IsRequired(prop.Name),
					Schema:   prop.Schema,
				})
			}
		} else {
			warn("request body is %s, not an object; no body properties", rec.RequestBody.Kind)
		}
	}

	if resp, status := responseSchema(op); resp != nil {
		rec.Response = toSchemaNodeWarn(resp, warn)
		rec.ResponseStatus = status
	}
	return rec
}

func parameters(seq *yaml.Node) []rawParameter {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]rawParameter, 0, len(seq.Content))
	for _, n := range seq.Content {
		name := strings.TrimSpace(scalarString(mappingValue(n, "name")))
		if name == "" {
			continue
		}
		out = append(out, rawParameter{
			Parameter: Parameter{
				Name:        name,
				In:          strings.TrimSpace(scalarString(mappingValue(n, "in"))),
				Required:    scalarBool(mappingValue(n, "required")),
				Description: strings.TrimSpace(scalarString(mappingValue(n, "description"))),
			},
			schema: mappingValue(n, "schema"),
		})
	}
	return out
}

func mergeParameters(shared, own []rawParameter) []rawParameter {
	out := make([]rawParameter, 0, len(shared)+len(own))
	out = append(out, shared...)
	for _, p := range own {
		replaced := false
		for i := range out {
			if paramKey(out[i].In, out[i].Name) == paramKey(p.In, p.Name) {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// responseSchema returns the JSON schema of the 200 response, falling back to
// 202, and the status it came from.
func responseSchema(op *yaml.Node) (*yaml.Node, string) {
	responses := mappingValue(op, "responses")
	for _, status := range []string{"200", "202"} {
		r := mappingValue(responses, status)
		if r == nil {
			continue
		}
		if s := mappingValue(jsonMedia(mappingValue(r, "content")), "schema"); s != nil {
			return s, status
		}
	}
	return nil, ""
}

func requestBodySchema(op *yaml.Node) *yaml.Node {
	return mappingValue(jsonMedia(mappingValue(mappingValue(op, "requestBody"), "content")), "schema")
}

// jsonMedia picks application/json, else the first media type mentioning json.
func jsonMedia(content *yaml.Node) *yaml.Node {
	if m := mappingValue(content, "application/json"); m != nil {
		return m
	}
	var found *yaml.Node
	eachPair(content, func(k string, v *yaml.Node) {
		if found == nil && strings.Contains(strings.ToLower(k), "json") {
			found = v
		}
	})
	return found
}

// ToSchemaNode converts a dereferenced schema subtree into a SchemaNode.
func ToSchemaNode(n *yaml.Node) *SchemaNode {
	return toSchemaNodeWarn(n, func(string, ...any) {})
}

func toSchemaNodeWarn(n *yaml.Node, warn func(string, ...any)) *SchemaNode {
	if n == nil {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		warn("schema at line %d is not a mapping", n.Line)
		return &SchemaNode{Kind: KindUnknown}
	}
	s := &SchemaNode{
		Format:      scalarString(mappingValue(n, "format")),
		Nullable:    scalarBool(mappingValue(n, "nullable")),
		Description: strings.TrimSpace(scalarString(mappingValue(n, "description"))),
	}
	if ex := mappingValue(n, "example"); ex != nil {
		s.Example = nodeValue(ex)
	}

	// OpenAPI 3.1 allows type: [string, "null"].
	if t := mappingValue(n, "type"); t != nil {
		if t.Kind == yaml.SequenceNode {
			for _, c := range t.Content {
				if c.Value == "null" {
					s.Nullable = true
				} else if s.Type == "" {
					s.Type = c.Value
				}
			}
			if s.Type == "" {
				s.Type = "null"
			}
		} else {
			s.Type = scalarString(t)
		}
	}

	branches := func(key string) []*SchemaNode {
		seq := mappingValue(n, key)
		if seq == nil || seq.Kind != yaml.SequenceNode {
			return nil
		}
		out := make([]*SchemaNode, 0, len(seq.Content))
		for _, c := range seq.Content {
			out = append(out, toSchemaNodeWarn(c, warn))
		}
		return out
	}

	if e := mappingValue(n, "enum"); e != nil && e.Kind == yaml.SequenceNode {
		s.Kind = KindEnum
		for _, c := range e.Content {
			s.Enum = append(s.Enum, nodeValue(c))
		}
		return s
	}
	if s.OneOf = branches("oneOf"); len(s.OneOf) > 0 {
		s.Kind = KindOneOf
		return s
	}
	if s.AnyOf = branches("anyOf"); len(s.AnyOf) > 0 {
		s.Kind = KindAnyOf
		return s
	}
	if s.AllOf = branches("allOf"); len(s.AllOf) > 0 {
		s.Kind = KindAllOf
		return s
	}

	items := mappingValue(n, "items")
	props := mappingValue(n, "properties")
	switch {
	case s.Type == "array" || (s.Type == "" && items != nil):
		s.Kind = KindArray
		if items == nil {
			warn("array schema at line %d has no items", n.Line)
			s.Items = &SchemaNode{Kind: KindUnknown}
		} else {
			s.Items = toSchemaNodeWarn(items, warn)
		}
	case s.Type == "object" || (s.Type == "" && props != nil):
		s.Kind = KindObject
		eachPair(props, func(name string, v *yaml.Node) {
			s.Properties = append(s.Properties, Property{Name: name, Schema: toSchemaNodeWarn(v, warn)})
		})
		if req := mappingValue(n, "required"); req != nil && req.Kind == yaml.SequenceNode {
			for _, r := range req.Content {
				s.Required = append(s.Required, r.Value)
			}
		}
	case s.Type == "string":
		s.Kind = KindString
	case s.Type == "number":
		s.Kind = KindNumber
	case s.Type == "integer":
		s.Kind = KindInteger
	case s.Type == "boolean":
		s.Kind = KindBoolean
	case s.Type == "null":
		s.Kind = KindNull
	default:
		if s.Type != "" {
			warn("unrecognised schema type %q at line %d", s.Type, n.Line)
		}
		s.Kind = KindUnknown
	}
	return s
}

func skipPath(p string, cfg *buildConfig) bool {
	for _, s := range cfg.skipPaths {
		if s == p {
			return true
		}
		if ok, _ := path.Match(s, p); ok {
			return true
		}
	}
	return false
}

func allowByPath(p string, cfg *buildConfig) bool {
	if len(cfg.pathRes) == 0 {
		return true
	}
	for _, re := range cfg.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	hasInclude := len(cfg.includeTags) > 0
	if hasInclude {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(cfg.excludeTags) > 0 {
		for _, t := range tags {
			if _, blocked := cfg.excludeTags[t]; blocked {
				return false
			}
		}
	}
	return true
}

func paramKey(in, name string) string { return in + ":" + name }
