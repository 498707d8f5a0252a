package client

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	t.Parallel()
	falsy := []any{nil, false, 0, int64(0), uint8(0), 0.0, math.NaN(), "", json.Number("0")}
	for _, v := range falsy {
		assert.False(t, truthy(v), "%#v", v)
	}
	truthyVals := []any{true, 1, -1, 0.5, "0", "false", json.Number("1"), []any{}, map[string]any{}, []string{}}
	for _, v := range truthyVals {
		assert.True(t, truthy(v), "%#v", v)
	}
}

func TestJSString(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"stake1u", "stake1u"},
		{true, "true"},
		{42, "42"},
		{uint(7), "7"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{-0.0, "0"},
		{math.Inf(1), "Infinity"},
		{json.Number("12.50"), "12.5"},
		{[]any{"a", nil, 1}, "a,,1"},
		{[]string{"x", "y"}, "x,y"},
		{map[string]any{"a": 1}, "[object Object]"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, jsString(tc.in), "%#v", tc.in)
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()
	assert.Nil(t, decodeBody(nil))
	assert.Nil(t, decodeBody([]byte("  \n")))
	assert.Equal(t, "plain", decodeBody([]byte("plain")))
	assert.Equal(t, "[1] [2]", decodeBody([]byte("[1] [2]")))
	assert.Equal(t, []any{json.Number("1")}, decodeBody([]byte("[1]")))
}
