package spec

// Internal model consumed by the emitters. Every value here is built once per
// run from a dereferenced document and is not mutated afterwards.

type HttpMethod string

const (
	GET  HttpMethod = "get"
	POST HttpMethod = "post"
)

// recognizedMethods are the methods the flattener turns into operations, in
// the order they are visited for each path item.
var recognizedMethods = []HttpMethod{GET, POST}

// OperationRecord is one (path, method) pair of the document.
type OperationRecord struct {
	Path        string
	Method      HttpMethod
	Summary     string
	Description string
	Tags        []string

	// Parameters holds path-level parameters followed by operation-level ones.
	Parameters []Parameter

	// RequestBody is the JSON request body schema, nil when absent.
	RequestBody *SchemaNode
	// BodyProperties are the top-level properties of RequestBody in document order.
	BodyProperties []BodyProperty

	// Response describes the 200 (or 202) JSON response body. Nil when the
	// document does not declare one.
	Response       *SchemaNode
	ResponseStatus string

	// Warnings collects non-fatal irregularities found while flattening.
	Warnings []string
}

// ID returns "method path", used in diagnostics.
func (o OperationRecord) ID() string { return string(o.Method) + " " + o.Path }

// QueryParameters returns the parameters sent in the query string.
func (o OperationRecord) QueryParameters() []Parameter {
	var out []Parameter
	for _, p := range o.Parameters {
		if p.In == "query" || p.In == "" {
			out = append(out, p)
		}
	}
	return out
}

type Parameter struct {
	Name        string
	In          string // path|query|header|cookie
	Required    bool
	Description string
	Schema      *SchemaNode
}

type BodyProperty struct {
	Name     string
	Required bool
	Schema   *SchemaNode
}

// Kind classifies a SchemaNode for type mapping.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindNull    Kind = "null"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindEnum    Kind = "enum"
	KindOneOf   Kind = "oneOf"
	KindAnyOf   Kind = "anyOf"
	KindAllOf   Kind = "allOf"
	KindUnknown Kind = "unknown"
)

// SchemaNode is a structural type descriptor (JSON Schema subset). It never
// carries a reference: the loader inlines every $ref before conversion.
type SchemaNode struct {
	Kind        Kind
	Type        string // declared type, kept for enums and diagnostics
	Format      string
	Nullable    bool
	Description string
	Example     any

	Items      *SchemaNode
	Properties []Property
	Required   []string
	Enum       []any

	OneOf []*SchemaNode
	AnyOf []*SchemaNode
	AllOf []*SchemaNode
}

// Property is a named object member; order follows the document.
type Property struct {
	Name   string
	Schema *SchemaNode
}

// Property returns the named property schema, or nil.
func (s *SchemaNode) Property(name string) *SchemaNode {
	if s == nil {
		return nil
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// IsRequired reports whether name is listed in the node's required array.
func (s *SchemaNode) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}
