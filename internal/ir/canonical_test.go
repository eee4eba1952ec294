package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	obj := Object{"zeta": Int(1), "alpha": Int(2), "mid": Object{"b": Bool(true), "a": Bool(false)}}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":{"a":false,"b":true},"zeta":1}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(String("<gbuffer> & depth"))
	require.NoError(t, err)
	assert.Equal(t, `"<gbuffer> & depth"`, string(got))
}

func TestMarshalCanonical_RejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(Array{Int(1), nil})
	assert.ErrorContains(t, err, "array[1]")

	_, err = MarshalCanonical(Object{"k": nil})
	assert.ErrorContains(t, err, `value for key "k"`)
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	decomposed := String("cafe\u0301")
	composed := String("caf\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_LineSeparatorsStayLiteral(t *testing.T) {
	got, err := MarshalCanonical(String("a\nb\"c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashBeforeU2028Text(t *testing.T) {
	// A literal backslash followed by the text u2028 must survive as text.
	got, err := MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_ControlCharactersEscaped(t *testing.T) {
	got, err := MarshalCanonical(String("a\nb\"c"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\"c"`, string(got))
}

func TestMarshalCanonical_Idempotent(t *testing.T) {
	obj := Object{"nodes": Array{Object{"name": String("/gbuffer"), "index": Array{Int(0), Int(0), Int(1), Int(0)}}}}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
