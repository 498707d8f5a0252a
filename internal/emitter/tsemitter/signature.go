package tsemitter

import (
	"strings"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// ParamSource tells where signature parameters were taken from.
type ParamSource string

const (
	SourceNone  ParamSource = ""
	SourceQuery ParamSource = "query"
	SourceBody  ParamSource = "body"
)

type SignatureParam struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Schema      *genspec.SchemaNode
}

// Signature is the parameter object of one generated method.
type Signature struct {
	Params []SignatureParam
	Source ParamSource
	// AllOptional is true when no parameter is required, so the whole params
	// argument may be omitted. Vacuously true for zero parameters.
	AllOptional bool
	// Mixed is set when the operation declares both query parameters and body
	// properties; only the query parameters are used.
	Mixed bool
}

// BuildSignature picks the query parameters of op if it has any, otherwise
// its request body properties. The two are never combined.
func BuildSignature(op genspec.OperationRecord) Signature {
	sig := Signature{AllOptional: true}
	query := op.QueryParameters()
	switch {
	case len(query) > 0:
		sig.Source = SourceQuery
		sig.Mixed = len(op.BodyProperties) > 0
		for _, p := range query {
			sig.Params = append(sig.Params, SignatureParam{
				Name:        p.Name,
				Type:        TSType(p.Schema),
				Required:    p.Required,
				Description: p.Description,
				Schema:      p.Schema,
			})
		}
	case len(op.BodyProperties) > 0:
		sig.Source = SourceBody
		for _, p := range op.BodyProperties {
			desc := ""
			if p.Schema != nil {
				desc = p.Schema.Description
			}
			sig.Params = append(sig.Params, SignatureParam{
				Name:        p.Name,
				Type:        TSType(p.Schema),
				Required:    p.Required,
				Description: desc,
				Schema:      p.Schema,
			})
		}
	}
	for _, p := range sig.Params {
		if p.Required {
			sig.AllOptional = false
		}
	}
	return sig
}

// TypeLiteral renders the params object type, e.g.
// "{ _stake_addresses: string[]; _epoch_no?: number }".
func (s Signature) TypeLiteral() string {
	if len(s.Params) == 0 {
		return "Record<string, never>"
	}
	fields := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		opt := "?"
		if p.Required {
			opt = ""
		}
		fields = append(fields, tsPropertyKey(p.Name)+opt+": "+p.Type)
	}
	return "{ " + strings.Join(fields, "; ") + " }"
}

// Declaration renders the first argument of the method, "params?: {...}" when
// every field is optional.
func (s Signature) Declaration() string {
	if s.AllOptional {
		return "params?: " + s.TypeLiteral()
	}
	return "params: " + s.TypeLiteral()
}
