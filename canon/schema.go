package canon

import (
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/types/known/structpb"
)

// Schema derives a JSON-Schema-like shape from a canonical value: the same
// tree with every leaf value stripped, keeping only type information and
// sorted keys. Two values with different shapes never produce the same
// schema hash; two values with the same shape but different data always do.
func Schema(v *structpb.Value) *structpb.Value {
	if v == nil {
		return structpb.NewNullValue()
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return structpb.NewStringValue("null")
	case *structpb.Value_BoolValue:
		return structpb.NewStringValue("boolean")
	case *structpb.Value_NumberValue:
		return structpb.NewStringValue("number")
	case *structpb.Value_StringValue:
		return structpb.NewStringValue("string")
	case *structpb.Value_ListValue:
		items := make([]*structpb.Value, 0, len(k.ListValue.Values))
		for _, item := range k.ListValue.Values {
			items = append(items, Schema(item))
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"type":  structpb.NewStringValue("array"),
			"items": structpb.NewListValue(&structpb.ListValue{Values: items}),
		}})
	case *structpb.Value_StructValue:
		props := make(map[string]*structpb.Value, len(k.StructValue.Fields))
		keys := make([]string, 0, len(k.StructValue.Fields))
		for key := range k.StructValue.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			props[key] = Schema(k.StructValue.Fields[key])
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"type":       structpb.NewStringValue("object"),
			"properties": structpb.NewStructValue(&structpb.Struct{Fields: props}),
		}})
	default:
		return structpb.NewStringValue("unknown")
	}
}

// Hash returns a stable hex digest of a canonical value (or schema). It
// visits struct fields in sorted key order (structpb.Struct keeps its
// fields in a Go map, so hand-built values hash the same as canonical
// ones) and hashes the byte encoding built by appendStable with xxhash.
func Hash(v *structpb.Value) string {
	var buf []byte
	buf = appendStable(buf, v)
	sum := xxhash.Sum64(buf)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(b)
}

// appendStable appends a deterministic byte encoding of v to buf. It is
// intentionally not JSON (avoids escaping edge cases affecting the hash)
// but is a total, order-stable encoding: identical values always produce
// identical bytes, and struct fields are visited in sorted key order.
func appendStable(buf []byte, v *structpb.Value) []byte {
	if v == nil {
		return append(buf, "N"...)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return append(buf, "n"...)
	case *structpb.Value_BoolValue:
		if k.BoolValue {
			return append(buf, "bt"...)
		}
		return append(buf, "bf"...)
	case *structpb.Value_NumberValue:
		return append(buf, []byte(formatNumber(k.NumberValue))...)
	case *structpb.Value_StringValue:
		buf = append(buf, 's')
		buf = append(buf, []byte(k.StringValue)...)
		return append(buf, 0)
	case *structpb.Value_ListValue:
		buf = append(buf, '[')
		for _, item := range k.ListValue.Values {
			buf = appendStable(buf, item)
			buf = append(buf, ',')
		}
		return append(buf, ']')
	case *structpb.Value_StructValue:
		keys := make([]string, 0, len(k.StructValue.Fields))
		for key := range k.StructValue.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for _, key := range keys {
			buf = append(buf, []byte(key)...)
			buf = append(buf, ':')
			buf = appendStable(buf, k.StructValue.Fields[key])
			buf = append(buf, ',')
		}
		return append(buf, '}')
	default:
		return append(buf, "u"...)
	}
}

func formatNumber(f float64) string {
	// strconv.FormatFloat with -1 precision round-trips exactly and is
	// stable across calls, which is all the hash needs.
	return "d" + strconv.FormatFloat(f, 'g', -1, 64)
}
