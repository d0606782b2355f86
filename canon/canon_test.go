package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestCanonicalizeDropsUndefined(t *testing.T) {
	var nilPtr *int
	m := map[string]any{
		"kept_null":  nil,
		"kept_zero":  0,
		"kept_false": false,
		"kept_empty": "",
		"dropped":    nilPtr,
	}
	v := Canonicalize(m)
	s := v.GetStructValue()
	require.NotNil(t, s)
	_, hasDropped := s.Fields["dropped"]
	assert.False(t, hasDropped)
	assert.True(t, s.Fields["kept_null"].GetKind() != nil)
	assert.Equal(t, float64(0), s.Fields["kept_zero"].GetNumberValue())
	assert.Equal(t, false, s.Fields["kept_false"].GetBoolValue())
	assert.Equal(t, "", s.Fields["kept_empty"].GetStringValue())
}

type cyclic struct {
	Name  string
	Child *cyclic
}

func TestCanonicalizeCircular(t *testing.T) {
	a := &cyclic{Name: "a"}
	a.Child = a
	v := Canonicalize(a)
	s := v.GetStructValue()
	require.NotNil(t, s)
	child := s.Fields["Child"]
	assert.Equal(t, Circular, child.GetStringValue())
}

func TestHashStableAcrossKeyOrder(t *testing.T) {
	v1 := Canonicalize(map[string]any{"a": 1, "b": 2})
	v2 := Canonicalize(map[string]any{"b": 2, "a": 1})
	assert.Equal(t, Hash(v1), Hash(v2))
}

func TestHashDiffersOnValueChange(t *testing.T) {
	v1 := Canonicalize(map[string]any{"a": 1})
	v2 := Canonicalize(map[string]any{"a": 2})
	assert.NotEqual(t, Hash(v1), Hash(v2))
}

func TestSchemaIgnoresValues(t *testing.T) {
	v1 := Canonicalize(map[string]any{"a": 1, "b": "x"})
	v2 := Canonicalize(map[string]any{"a": 999, "b": "y"})
	assert.Equal(t, Hash(Schema(v1)), Hash(Schema(v2)))
}

func TestSchemaDiffersOnShape(t *testing.T) {
	v1 := Canonicalize(map[string]any{"a": 1})
	v2 := Canonicalize(map[string]any{"a": "string"})
	assert.NotEqual(t, Hash(Schema(v1)), Hash(Schema(v2)))
}

func TestBufferRoundTrip(t *testing.T) {
	b := []byte{0, 1, 2, 255}
	v := BufferValue(b)
	assert.True(t, IsBuffer(v))
	restored := RestoreBuffer(v)
	assert.Equal(t, b, restored)
}

func TestToNativeRestoresNestedBuffers(t *testing.T) {
	// A structpb tree as it would arrive over the wire from the match
	// service: a row object whose "payload" field follows the Buffer
	// convention nested inside a list.
	row := structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":      structpb.NewNumberValue(1),
		"payload": BufferValue([]byte{1, 2, 3}),
	}})
	v := structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"rows": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{row}}),
	}})

	native := ToNative(v)
	m, ok := native.(map[string]any)
	require.True(t, ok)
	rows, ok := m["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	got := rows[0].(map[string]any)
	assert.Equal(t, []byte{1, 2, 3}, got["payload"])
	assert.Equal(t, float64(1), got["id"])
}

func TestEmptyContainersPreserved(t *testing.T) {
	v := Canonicalize(map[string]any{
		"arr": []any{},
		"obj": map[string]any{},
	})
	s := v.GetStructValue()
	require.NotNil(t, s)
	assert.Equal(t, 0, len(s.Fields["arr"].GetListValue().Values))
	assert.Equal(t, 0, len(s.Fields["obj"].GetStructValue().Fields))
}

func TestNullValueKindNotNil(t *testing.T) {
	v := structpb.NewNullValue()
	assert.NotNil(t, v.GetKind())
}
