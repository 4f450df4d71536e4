package provisioning

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalElement(t *testing.T) {
	content := map[string]json.RawMessage{
		"name":   json.RawMessage(`"hub.example.net"`),
		"count":  json.RawMessage(`42`),
		"object": json.RawMessage(`{"a":1}`),
		"list":   json.RawMessage(`["first", "second"]`),
		"null":   json.RawMessage(`null`),
	}

	tests := []struct {
		name     string
		key      string
		index    int
		wantKind ElementKind
		wantStr  string
	}{
		{"string", "name", 0, ElementSingle, "hub.example.net"},
		{"number", "count", 0, ElementSingle, "42"},
		{"object", "object", 0, ElementSingle, `{"a":1}`},
		{"list head", "list", 0, ElementList, "first"},
		{"list item", "list", 1, ElementList, "second"},
		{"missing", "nope", 0, ElementAbsent, ""},
		{"null", "null", 0, ElementAbsent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := OptionalElement(content, tt.key, tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantStr, e.String())
			assert.Equal(t, tt.wantKind != ElementAbsent, e.Present())
		})
	}

	t.Run("index out of range", func(t *testing.T) {
		_, err := OptionalElement(content, "list", 2)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)

		_, err = OptionalElement(content, "list", -1)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})
}

func TestElementDecode(t *testing.T) {
	content := map[string]json.RawMessage{"obj": json.RawMessage(`{"a":1}`)}

	e, err := OptionalElement(content, "obj", 0)
	require.NoError(t, err)
	var v map[string]int
	require.NoError(t, e.Decode(&v))
	assert.Equal(t, 1, v["a"])

	absent, err := OptionalElement(content, "missing", 0)
	require.NoError(t, err)
	v = map[string]int{"keep": 1}
	require.NoError(t, absent.Decode(&v))
	assert.Equal(t, map[string]int{"keep": 1}, v)
}

func TestElementKindString(t *testing.T) {
	assert.Equal(t, "absent", ElementAbsent.String())
	assert.Equal(t, "single", ElementSingle.String())
	assert.Equal(t, "list", ElementList.String())
	assert.Equal(t, "ElementKind(9)", ElementKind(9).String())
}
