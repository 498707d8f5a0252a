package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flattenSpec = `openapi: 3.0.2
info:
  title: Koios API
  version: 1.0.0
  description: Koios
servers:
  - url: https://api.koios.rest/api/v1
  - url: https://preprod.koios.rest/api/v1
paths:
  /pool_list:
    parameters:
      - name: _offset
        in: query
        schema: {type: integer}
      - name: _limit
        in: query
        description: shared limit
        schema: {type: integer}
    get:
      tags: [Pool]
      parameters:
        - name: _limit
          in: query
          required: true
          description: operation limit
          schema: {type: integer}
        - name: _pool_status
          in: query
          schema:
            type: string
            enum: [registered, retiring, retired]
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  type: object
                  properties:
                    pool_id_bech32: {type: string}
    put:
      responses: {}
  /submittx:
    post:
      tags: [Transactions]
      responses:
        "202":
          description: accepted
          content:
            application/json:
              schema:
                type: string
  /ogmios:
    post:
      tags: [Ogmios]
      responses: {}
  /asset_info:
    get:
      tags: [Asset]
      responses: {}
    post:
      tags: [Asset]
      requestBody:
        content:
          application/json; charset=utf-8:
            schema:
              type: object
              required: [_asset_list]
              properties:
                _asset_list:
                  type: array
                  items:
                    type: array
                    items: {type: string}
                _extended: {type: boolean}
      responses: {}
`

func TestBuildOperations_DocumentOrderAndMethods(t *testing.T) {
	t.Parallel()
	ops := mustLoad(t, flattenSpec)

	var ids []string
	for _, op := range ops {
		ids = append(ids, op.ID())
	}
	// put is not a recognized method
	assert.Equal(t, []string{"get /pool_list", "post /submittx", "post /ogmios", "get /asset_info", "post /asset_info"}, ids)
}

func TestBuildOperations_ParameterMerge(t *testing.T) {
	t.Parallel()
	ops := mustLoad(t, flattenSpec)
	params := ops[0].Parameters
	require.Len(t, params, 3)

	assert.Equal(t, "_offset", params[0].Name)
	assert.False(t, params[0].Required)
	// operation-level _limit replaces the shared one in place
	assert.Equal(t, "_limit", params[1].Name)
	assert.True(t, params[1].Required)
	assert.Equal(t, "operation limit", params[1].Description)
	assert.Equal(t, KindInteger, params[1].Schema.Kind)

	assert.Equal(t, KindEnum, params[2].Schema.Kind)
	assert.Equal(t, []any{"registered", "retiring", "retired"}, params[2].Schema.Enum)
	assert.Len(t, ops[0].QueryParameters(), 3)
}

func TestBuildOperations_BodyPropertiesAndResponses(t *testing.T) {
	t.Parallel()
	ops := mustLoad(t, flattenSpec)

	submit := ops[1]
	assert.Equal(t, "202", submit.ResponseStatus)
	assert.Equal(t, KindString, submit.Response.Kind)

	bulk := ops[4]
	assert.Equal(t, "/asset_info", bulk.Path)
	require.Len(t, bulk.BodyProperties, 2)
	assert.Equal(t, "_asset_list", bulk.BodyProperties[0].Name)
	assert.True(t, bulk.BodyProperties[0].Required)
	assert.Equal(t, KindArray, bulk.BodyProperties[0].Schema.Items.Kind)
	assert.False(t, bulk.BodyProperties[1].Required)
	assert.Nil(t, bulk.Response)

	assert.Equal(t, "200", ops[0].ResponseStatus)
	assert.Equal(t, KindObject, ops[0].Response.Items.Kind)
}

func TestBuildOperations_Filters(t *testing.T) {
	t.Parallel()

	ops := mustLoad(t, flattenSpec, WithSkipPaths([]string{"/ogmios", "/submit*"}))
	require.Len(t, ops, 3)
	for _, op := range ops {
		assert.NotContains(t, []string{"/ogmios", "/submittx"}, op.Path)
	}

	ops = mustLoad(t, flattenSpec, WithIncludeTags([]string{"Asset"}), WithMethods([]HttpMethod{"POST"}))
	require.Len(t, ops, 1)
	assert.Equal(t, "post /asset_info", ops[0].ID())

	ops = mustLoad(t, flattenSpec, WithExcludeTags([]string{"Asset", "Ogmios"}), WithPathPatterns([]string{"^/pool"}))
	require.Len(t, ops, 1)
	assert.Equal(t, "/pool_list", ops[0].Path)

	ops = mustLoad(t, flattenSpec, WithPathPatterns([]string{"("}))
	assert.Empty(t, ops)
}

func TestBuildOperations_RefusesUndereferencedDocument(t *testing.T) {
	t.Parallel()
	_, err := BuildOperations(mustDoc(t, tipSpec))
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, DereferenceError, se.Code)
}

func TestBuildOperations_NoSchemaNodeCarriesReference(t *testing.T) {
	t.Parallel()
	for _, op := range mustLoad(t, accountSpec) {
		for _, p := range op.BodyProperties {
			assertNoUnknown(t, p.Schema)
		}
		assertNoUnknown(t, op.Response)
	}
}

// assertNoUnknown walks s; every node of the fixtures has a known kind, so an
// unknown one would mean an unresolved reference slipped through.
func assertNoUnknown(t *testing.T, s *SchemaNode) {
	t.Helper()
	if s == nil {
		return
	}
	assert.NotEqual(t, KindUnknown, s.Kind)
	assertNoUnknown(t, s.Items)
	for _, p := range s.Properties {
		assertNoUnknown(t, p.Schema)
	}
}

func TestDocumentInfo(t *testing.T) {
	t.Parallel()
	info := DocumentInfo(mustDoc(t, flattenSpec))
	assert.Equal(t, Info{
		Title:       "Koios API",
		Version:     "1.0.0",
		Description: "Koios",
		Servers:     []string{"https://api.koios.rest/api/v1", "https://preprod.koios.rest/api/v1"},
	}, info)
}

func TestToSchemaNode_Kinds(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `openapi: 3.1.0
components:
  schemas:
    s:
      type: object
      required: [b]
      properties:
        a: {type: [string, "null"]}
        b: {type: number, nullable: true, example: 1.5}
        c:
          oneOf:
            - {type: string}
            - {type: integer}
        d:
          allOf:
            - {type: object, properties: {x: {type: string}}}
            - {type: object, properties: {y: {type: string}}}
        e: {anyOf: [{type: boolean}, {type: "null"}]}
        f: {type: array}
        g: {type: weird}
        h: {properties: {z: {type: boolean}}}
        i: {description: free-form}
`)
	n := ToSchemaNode(mappingValue(mappingValue(mappingValue(doc.Root, "components"), "schemas"), "s"))
	require.Equal(t, KindObject, n.Kind)
	assert.True(t, n.IsRequired("b"))
	assert.False(t, n.IsRequired("a"))

	a := n.Property("a")
	assert.Equal(t, KindString, a.Kind)
	assert.True(t, a.Nullable)

	b := n.Property("b")
	assert.Equal(t, KindNumber, b.Kind)
	assert.True(t, b.Nullable)
	assert.Equal(t, 1.5, b.Example)

	assert.Equal(t, KindOneOf, n.Property("c").Kind)
	assert.Len(t, n.Property("c").OneOf, 2)
	assert.Equal(t, KindAllOf, n.Property("d").Kind)
	assert.Equal(t, KindAnyOf, n.Property("e").Kind)
	assert.Equal(t, KindNull, n.Property("e").AnyOf[1].Kind)

	f := n.Property("f")
	assert.Equal(t, KindArray, f.Kind)
	assert.Equal(t, KindUnknown, f.Items.Kind)

	assert.Equal(t, KindUnknown, n.Property("g").Kind)
	assert.Equal(t, KindObject, n.Property("h").Kind)
	assert.Equal(t, KindUnknown, n.Property("i").Kind)
	assert.Equal(t, "free-form", n.Property("i").Description)
	assert.Nil(t, n.Property("missing"))
}

func TestBuildOperations_WarnsOnOddSchemas(t *testing.T) {
	t.Parallel()
	ops := mustLoad(t, `openapi: 3.0.0
paths:
  /x:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: array
              items: {type: string}
      responses:
        "200":
          content:
            application/json:
              schema: {type: mystery}
`)
	require.Len(t, ops, 1)
	assert.Empty(t, ops[0].BodyProperties)
	assert.Len(t, ops[0].Warnings, 2)
}
