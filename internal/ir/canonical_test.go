package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"zero", 0, "0"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"json number", json.Number("17"), "17"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"b", "a"}, `["b","a"]`},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
		{"string map", map[string]string{"b": "x", "a": "y"}, `{"a":"y","b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{
			"b": 1,
			"a": 2,
		},
		"a": 3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"html": "<a href=\"x\">&</a>"})
	require.NoError(t, err)
	assert.NotContains(t, string(result), "\\u003c")
	assert.NotContains(t, string(result), "\\u003e")
	assert.NotContains(t, string(result), "\\u0026")
	assert.Contains(t, string(result), "<a href=")
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"float64", 1.5},
		{"float32", float32(2.5)},
		{"json number fraction", json.Number("1.25")},
		{"nested float", map[string]any{"a": []any{1, 2.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
		})
	}
}

func TestMarshalCanonicalRejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{ A int }{A: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	keys, err := MarshalCanonical(map[string]any{decomposed: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"`+composed+`":1}`, string(keys))
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"line separator", "hello\u2028world", "\"hello\u2028world\""},
		{"paragraph separator", "hello\u2029world", "\"hello\u2029world\""},
		{"escaped backslash before u2028 text", `a\u2028`, `"a\\u2028"`},
		{"control char", "a\nb", `"a\nb"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeJSON(t *testing.T) {
	input := []byte(`{ "b" : [1, 2], "a" : {"y": true, "x": null} }`)

	result, err := CanonicalizeJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":null,"y":true},"b":[1,2]}`, string(result))

	again, err := CanonicalizeJSON(result)
	require.NoError(t, err)
	assert.Equal(t, string(result), string(again), "canonicalization must be idempotent")
}

func TestCanonicalizeJSONInvalid(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{"a":`))
	require.Error(t, err)
}

func TestToValue(t *testing.T) {
	type item struct {
		ID    string   `json:"id"`
		Count int      `json:"count"`
		Tags  []string `json:"tags,omitempty"`
	}

	v, err := ToValue(item{ID: "x", Count: 2})
	require.NoError(t, err)

	result, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"count":2,"id":"x"}`, string(result))
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestCompareUTF16(t *testing.T) {
	assert.Equal(t, 0, CompareUTF16("abc", "abc"))
	assert.Negative(t, CompareUTF16("a", "b"))
	assert.Negative(t, CompareUTF16("\U00010000", "\uE000"))
	assert.Positive(t, CompareUTF16("ab", "a"))
}
