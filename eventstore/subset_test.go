package eventstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

//nolint:funlen
func Test_IsSubset(t *testing.T) {
	tests := []struct {
		name      string
		payload   Value
		predicate Value
		expected  bool
	}{
		{name: "nil predicate matches object", payload: Object{"a": Number(1)}, predicate: nil, expected: true},
		{name: "null predicate matches scalar", payload: String("x"), predicate: Null{}, expected: true},
		{name: "nil predicate matches nil payload", payload: nil, predicate: nil, expected: true},
		{name: "nil payload never matches present predicate", payload: nil, predicate: Object{}, expected: false},
		{name: "null payload never matches present predicate", payload: Null{}, predicate: String("x"), expected: false},
		{name: "equal strings", payload: String("x"), predicate: String("x"), expected: true},
		{name: "different strings", payload: String("x"), predicate: String("y"), expected: false},
		{name: "equal numbers", payload: Number(42), predicate: Number(42), expected: true},
		{name: "number never equals its string form", payload: Number(1), predicate: String("1"), expected: false},
		{name: "equal bools", payload: Bool(false), predicate: Bool(false), expected: true},
		{name: "bool never equals number", payload: Bool(true), predicate: Number(1), expected: false},
		{name: "empty object predicate matches any object", payload: Object{"a": Number(1)}, predicate: Object{}, expected: true},
		{name: "empty object predicate does not match array", payload: Array{}, predicate: Object{}, expected: false},
		{
			name:      "object subset ignores extra payload keys",
			payload:   Object{"a": Number(1), "b": String("x"), "c": Bool(true)},
			predicate: Object{"a": Number(1)},
			expected:  true,
		},
		{
			name:      "object predicate key missing in payload",
			payload:   Object{"a": Number(1)},
			predicate: Object{"b": Number(1)},
			expected:  false,
		},
		{
			name:      "object predicate key with null value still requires the key",
			payload:   Object{"a": Number(1)},
			predicate: Object{"b": Null{}},
			expected:  false,
		},
		{
			name:      "object predicate key with null value matches any value",
			payload:   Object{"b": String("anything")},
			predicate: Object{"b": Null{}},
			expected:  true,
		},
		{
			name:      "nested object subset",
			payload:   Object{"book": Object{"id": String("b1"), "title": String("Dune")}},
			predicate: Object{"book": Object{"id": String("b1")}},
			expected:  true,
		},
		{
			name:      "nested object mismatch",
			payload:   Object{"book": Object{"id": String("b1")}},
			predicate: Object{"book": Object{"id": String("b2")}},
			expected:  false,
		},
		{
			name:      "array predicate is existential per element",
			payload:   Array{Object{"a": Number(1)}, Object{"a": Number(2)}},
			predicate: Array{Object{"a": Number(1)}},
			expected:  true,
		},
		{
			name:      "array predicate with more elements than matched",
			payload:   Array{Object{"a": Number(1)}},
			predicate: Array{Object{"a": Number(1)}, Object{"a": Number(2)}},
			expected:  false,
		},
		{
			name:      "array predicate elements may share one payload element",
			payload:   Array{Object{"a": Number(1), "b": Number(2)}},
			predicate: Array{Object{"a": Number(1)}, Object{"b": Number(2)}},
			expected:  true,
		},
		{
			name:      "array matching is order independent",
			payload:   Array{String("x"), String("y"), String("z")},
			predicate: Array{String("z"), String("x")},
			expected:  true,
		},
		{name: "empty array predicate matches any array", payload: Array{Number(1)}, predicate: Array{}, expected: true},
		{name: "array predicate vs object payload", payload: Object{"0": Number(1)}, predicate: Array{Number(1)}, expected: false},
		{name: "object predicate vs array payload", payload: Array{Number(1)}, predicate: Object{"a": Number(1)}, expected: false},
		{name: "scalar predicate vs array payload", payload: Array{Number(1)}, predicate: Number(1), expected: false},
		{name: "array predicate vs scalar payload", payload: Number(1), predicate: Array{Number(1)}, expected: false},
		{
			name:      "array nested in object",
			payload:   Object{"tags": Array{String("sci-fi"), String("classic")}},
			predicate: Object{"tags": Array{String("classic")}},
			expected:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsSubset(tc.payload, tc.predicate))
		})
	}
}

func Test_IsSubset_When_UnrelatedKeysAreAddedToThePayload_ItStaysAMatch(t *testing.T) {
	// arrange
	predicate := MustParseValue(`{"reader":{"id":"r1"},"tags":["a"]}`)
	payload := MustParseValue(`{"reader":{"id":"r1"},"tags":["a","b"]}`)
	payloadWithMoreKeys := MustParseValue(`{"reader":{"id":"r1","name":"Ann"},"tags":["a","b"],"x":1,"y":[1,2]}`)

	// act & assert
	assert.True(t, IsSubset(payload, predicate))
	assert.True(t, IsSubset(payloadWithMoreKeys, predicate))
}
