package canon

import "google.golang.org/protobuf/types/known/structpb"

// bufferTypeKey and bufferDataKey mirror the `{type: "Buffer", data: [...]}`
// convention used on the wire for byte sequences (spec §4.4, "Buffer
// restoration").
const (
	bufferTypeKey = "type"
	bufferDataKey = "data"
	bufferTypeTag = "Buffer"
)

// BufferValue canonicalizes a byte slice using the `{type:"Buffer",
// data:[...]}` convention instead of the opaque-string fallback used
// elsewhere, so replayed records round-trip through canonicalization
// without losing their byte-array identity.
func BufferValue(b []byte) *structpb.Value {
	data := make([]*structpb.Value, len(b))
	for i, bb := range b {
		data[i] = structpb.NewNumberValue(float64(bb))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		bufferTypeKey: structpb.NewStringValue(bufferTypeTag),
		bufferDataKey: structpb.NewListValue(&structpb.ListValue{Values: data}),
	}})
}

// IsBuffer reports whether v follows the Buffer convention.
func IsBuffer(v *structpb.Value) bool {
	s := v.GetStructValue()
	if s == nil {
		return false
	}
	t := s.Fields[bufferTypeKey]
	return t != nil && t.GetStringValue() == bufferTypeTag && s.Fields[bufferDataKey] != nil
}

// RestoreBuffer converts a Buffer-convention structpb.Value back into a
// native []byte. It must be called before handing a replayed result to the
// caller (spec §4.4, "Buffer restoration").
func RestoreBuffer(v *structpb.Value) []byte {
	s := v.GetStructValue()
	if s == nil {
		return nil
	}
	list := s.Fields[bufferDataKey].GetListValue()
	if list == nil {
		return nil
	}
	out := make([]byte, len(list.Values))
	for i, item := range list.Values {
		out[i] = byte(item.GetNumberValue())
	}
	return out
}

// ToNative walks v and converts it into plain Go values a caller can type-
// assert against (map[string]any, []any, string, float64, bool, nil),
// restoring every Buffer-convention struct anywhere in the tree to a
// native []byte along the way (spec §4.4, "Buffer restoration... MUST be
// restored to native byte arrays before handing the result to the
// caller"). This is the match package's entry point for turning a
// retrieved record back into the shape an instrumented library's caller
// expects.
func ToNative(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	if IsBuffer(v) {
		return RestoreBuffer(v)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NumberValue:
		return k.NumberValue
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_ListValue:
		out := make([]any, len(k.ListValue.Values))
		for i, item := range k.ListValue.Values {
			out[i] = ToNative(item)
		}
		return out
	case *structpb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.Fields))
		for key, val := range k.StructValue.Fields {
			out[key] = ToNative(val)
		}
		return out
	default:
		return nil
	}
}
