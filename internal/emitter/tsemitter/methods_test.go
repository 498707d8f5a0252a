package tsemitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

func poolListOp() genspec.OperationRecord {
	return genspec.OperationRecord{
		Path:    "/pool_history",
		Method:  genspec.GET,
		Summary: "Pool history",
		Parameters: []genspec.Parameter{
			{Name: "_pool_bech32", In: "query", Required: true, Schema: str()},
			{Name: "_epoch_no", In: "query", Schema: integer(), Description: "Epoch number"},
		},
	}
}

func TestRenderMethods_GetQueryFragmentsUseTruthiness(t *testing.T) {
	t.Parallel()
	out := renderMethods(named(t, []genspec.OperationRecord{poolListOp()}), EnvelopeOK, PresenceTruthy)

	// A value of 0 is falsy in the guard, so "&_epoch_no=0" is never produced.
	want := "client.get(`/pool_history?" +
		"${params?._pool_bech32 ? `&_pool_bech32=${params._pool_bech32}` : \"\"}" +
		"${params?._epoch_no ? `&_epoch_no=${params._epoch_no}` : \"\"}" +
		"${extraParams || \"\"}`, { headers, signal }) as unknown as Promise<Result<types.PoolHistoryResponse>>,"
	assert.Contains(t, out, want)
	assert.Contains(t, out, "    params: { _pool_bech32: string; _epoch_no?: number },\n")
	assert.Contains(t, out, "   * @param params._epoch_no Epoch number\n")
	assert.Contains(t, out, "  PoolHistory: async (\n")
}

func TestRenderMethods_DefinedPresence(t *testing.T) {
	t.Parallel()
	out := renderMethods(named(t, []genspec.OperationRecord{poolListOp()}), EnvelopeOK, PresenceDefined)
	assert.Contains(t, out, "${params?._epoch_no !== undefined ? `&_epoch_no=${params._epoch_no}` : \"\"}")
}

func TestRenderMethods_PostSendsDeclaredBody(t *testing.T) {
	t.Parallel()
	op := genspec.OperationRecord{
		Path:   "/account_info",
		Method: genspec.POST,
		BodyProperties: []genspec.BodyProperty{
			{Name: "_stake_addresses", Required: true, Schema: &genspec.SchemaNode{Kind: genspec.KindArray, Items: str()}},
			{Name: "_epoch-no", Schema: integer()},
		},
	}
	out := renderMethods(named(t, []genspec.OperationRecord{op}), EnvelopeOK, PresenceTruthy)
	assert.Contains(t, out, "      `/account_info?${extraParams || \"\"}`,\n")
	assert.Contains(t, out, "      { _stake_addresses: params?._stake_addresses, \"_epoch-no\": params?.[\"_epoch-no\"] },\n")
	assert.Contains(t, out, "    params: { _stake_addresses: string[]; \"_epoch-no\"?: number },\n")
	assert.NotContains(t, out, "&_stake_addresses=")
}

func TestRenderMethods_PostWithoutBody(t *testing.T) {
	t.Parallel()
	op := genspec.OperationRecord{Path: "/submit", Method: genspec.POST}
	out := renderMethods(named(t, []genspec.OperationRecord{op}), EnvelopeOK, PresenceTruthy)
	assert.Contains(t, out, "      {},\n")
	assert.Contains(t, out, "    params?: Record<string, never>,\n")
}

func TestRenderMethods_ArgumentOrder(t *testing.T) {
	t.Parallel()
	out := renderMethods(named(t, []genspec.OperationRecord{{Path: "/tip", Method: genspec.GET}}), EnvelopeOK, PresenceTruthy)
	i := strings.Index(out, "params?:")
	j := strings.Index(out, "extraParams?: string")
	k := strings.Index(out, "headers?: Record<string, string>")
	l := strings.Index(out, "signal?: AbortSignal")
	assert.True(t, i >= 0 && i < j && j < k && k < l, out)
	assert.Contains(t, out, "client.get(`/tip?${extraParams || \"\"}`, { headers, signal })")
}

func TestRenderMethods_Envelope(t *testing.T) {
	t.Parallel()
	n := named(t, []genspec.OperationRecord{{Path: "/tip", Method: genspec.GET}})
	ok := renderMethods(n, EnvelopeOK, PresenceTruthy)
	assert.Contains(t, ok, "| { ok: true; status: number; data: T }")
	assert.Contains(t, ok, "| { ok: false; status?: number; error: unknown };")

	success := renderMethods(n, EnvelopeSuccess, PresenceTruthy)
	assert.Contains(t, success, "| { success: true; status: number; data: T }")
	assert.NotContains(t, success, "ok: true")
}

func TestTemplateText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/a\\`b\\${c}", templateText("/a`b${c}"))
}

func TestJSDoc(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/** one */\n", jsDoc("", []string{"one"}))
	assert.Equal(t, "  /**\n   * a\n   *\n   * b *\\/\n   */\n", jsDoc("  ", []string{"a", "", "b */"}))
	assert.Equal(t, "", jsDoc("", nil))
}
