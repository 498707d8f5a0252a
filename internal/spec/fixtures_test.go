package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// tipSpec is the two-operation document used across the loader tests.
const tipSpec = `openapi: 3.0.2
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
          epoch_no:
            type: integer
`

const accountSpec = `openapi: 3.0.2
info:
  title: Koios API
  version: 1.0.0
paths:
  /account_info:
    post:
      tags: [Stake Account]
      requestBody:
        $ref: "#/components/requestBodies/stake_addresses"
      responses:
        "200":
          description: Success!
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/account_info"
  /account_info_cached:
    post:
      tags: [Stake Account]
      requestBody:
        $ref: "#/components/requestBodies/stake_addresses"
      responses:
        "200":
          description: Success!
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/wrong"
components:
  requestBodies:
    stake_addresses:
      content:
        application/json:
          schema:
            type: object
            required: [_stake_addresses]
            properties:
              _stake_addresses:
                type: array
                items:
                  type: string
              _epoch_no:
                type: integer
  schemas:
    account_info:
      type: array
      items:
        type: object
        properties:
          stake_address:
            type: string
          status:
            type: string
            enum: [registered, not registered]
          delegated_pool:
            type: string
            nullable: true
    wrong:
      type: array
      items:
        type: object
        properties:
          foo:
            type: string
`

// mustDoc parses src without dereferencing it.
func mustDoc(t *testing.T, src string) *Document {
	t.Helper()
	root, err := parseTree([]byte(src))
	require.NoError(t, err)
	return &Document{Root: root, Location: "test.yaml"}
}

// mustLoad parses, dereferences and flattens src.
func mustLoad(t *testing.T, src string, opts ...BuildOption) []OperationRecord {
	t.Helper()
	doc := mustDoc(t, src)
	require.NoError(t, Dereference(doc))
	ops, err := BuildOperations(doc, opts...)
	require.NoError(t, err)
	return ops
}
