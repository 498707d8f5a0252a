package tsemitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

const tipBlockSpec = `openapi: 3.0.2
info:
  title: Koios API
  version: 1.0.0
servers:
  - url: https://api.koios.rest/api/v1
paths:
  /tip:
    get:
      tags: [Network]
      summary: Query Chain Tip
      responses:
        "200":
          description: Success!
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/tip"
  /block_info:
    post:
      tags: [Block]
      summary: Block Information
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [_block_hashes]
              properties:
                _block_hashes:
                  type: array
                  items:
                    type: string
      responses:
        "200":
          description: Success!
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/tip"
components:
  schemas:
    tip:
      type: array
      items:
        type: object
        properties:
          hash:
            type: string
            description: Hash of the block
            example: f6192a1aaa6d3d05b4703891a6b66cd757801c61ace86cbe5ab0d66e07f601ab
          epoch_no:
            type: integer
`

func loadOps(t *testing.T, src string, opts ...genspec.BuildOption) ([]genspec.OperationRecord, genspec.Info) {
	t.Helper()
	doc, err := genspec.LoadData(context.Background(), []byte(src), "test.yaml", genspec.WithSkipValidation(true))
	require.NoError(t, err)
	ops, err := genspec.BuildOperations(doc, opts...)
	require.NoError(t, err)
	return ops, genspec.DocumentInfo(doc)
}

func named(t *testing.T, ops []genspec.OperationRecord) []namedOperation {
	t.Helper()
	n, _, err := nameOperations(ops, DefaultNameOverrides())
	require.NoError(t, err)
	return n
}

func str() *genspec.SchemaNode { return &genspec.SchemaNode{Kind: genspec.KindString} }
func integer() *genspec.SchemaNode {
	return &genspec.SchemaNode{Kind: genspec.KindInteger}
}
