package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derefDoc(t *testing.T, src string) *Document {
	t.Helper()
	doc := mustDoc(t, src)
	require.NoError(t, Dereference(doc))
	return doc
}

func TestPatch_CopyResponse(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, accountSpec)
	require.NoError(t, ApplyPatches(doc, KoiosPatchRules()))

	ops, err := BuildOperations(doc)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, ops[0].Response, ops[1].Response)
	assert.Nil(t, ops[1].Response.Items.Property("foo"))

	// The copy is owned by the target alone.
	src, _ := responseSchema(mappingValue(mappingValue(mappingValue(doc.Root, "paths"), "/account_info"), "post"))
	dst, _ := responseSchema(mappingValue(mappingValue(mappingValue(doc.Root, "paths"), "/account_info_cached"), "post"))
	assert.NotSame(t, src, dst)
	setMappingValue(dst, "description", scalarNode("cached"))
	assert.Nil(t, mappingValue(src, "description"))
}

func TestPatch_MissingTargetFailsLoud(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, tipSpec)
	err := ApplyPatches(doc, KoiosPatchRules())
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, PatchError, se.Code)
	assert.Contains(t, se.Message, "/account_info_cached")
	assert.Equal(t, "#/paths/~1account_info_cached/post", se.JSONPointer)
}

func TestPatch_MissingSourceFailsLoud(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, accountSpec)
	err := PatchRule{Kind: PatchCopyResponse, Path: "/account_info_cached", Method: POST, FromPath: "/gone", FromMethod: POST}.Apply(doc)
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "operation post /gone not found")
}

func TestPatch_RequireBody(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, accountSpec)
	rule := PatchRule{Kind: PatchRequireBody, Path: "/account_info", Method: POST, Names: []string{"_stake_addresses", "_epoch_no"}}
	require.NoError(t, rule.Apply(doc))

	ops, err := BuildOperations(doc)
	require.NoError(t, err)
	for _, bp := range ops[0].BodyProperties {
		assert.True(t, bp.Required, bp.Name)
	}
	// the cached endpoint had its own copy of the request body
	assert.False(t, ops[1].BodyProperties[1].Required)
}

func TestPatch_RequireBodyUnknownProperty(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, accountSpec)
	err := PatchRule{Kind: PatchRequireBody, Path: "/account_info", Method: POST, Names: []string{"_nope"}}.Apply(doc)
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, PatchError, se.Code)
}

func TestPatch_RequireParams(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, `openapi: 3.0.0
paths:
  /blocks:
    parameters:
      - name: epoch_no
        in: query
        schema: {type: integer}
    get:
      parameters:
        - name: limit
          in: query
          schema: {type: integer}
      responses: {}
`)
	require.NoError(t, PatchRule{Kind: PatchRequireParams, Path: "/blocks", Method: GET, Names: []string{"epoch_no", "limit"}}.Apply(doc))
	ops, err := BuildOperations(doc)
	require.NoError(t, err)
	require.Len(t, ops[0].Parameters, 2)
	assert.True(t, ops[0].Parameters[0].Required)
	assert.True(t, ops[0].Parameters[1].Required)

	err = PatchRule{Kind: PatchRequireParams, Path: "/blocks", Method: GET, Names: []string{"offset"}}.Apply(doc)
	require.Error(t, err)
}

func TestPatch_UnknownKind(t *testing.T) {
	t.Parallel()
	doc := derefDoc(t, tipSpec)
	err := PatchRule{Kind: "rename", Path: "/tip", Method: GET}.Apply(doc)
	var se *SpecError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "unknown patch kind")
}
