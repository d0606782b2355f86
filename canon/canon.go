// Package canon implements deterministic canonicalization of arbitrary
// values into a structpb representation, plus stable schema derivation and
// content hashing. It is the cross-cutting dependency of the tracing core
// and the replay match service (spec §4.5).
package canon

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Circular is substituted for the second occurrence of a self-referential
// structure.
const Circular = "[Circular]"

// Canonicalize converts an arbitrary Go value into a structpb.Value after
// applying the canonicalization rules from spec §4.5:
//   - keys whose value is Go's absence-equivalent (nil interface from a
//     missing map entry) are removed; null (a typed nil pointer held in
//     an interface value), 0, false and "" are preserved
//   - time.Time values become ISO-8601 strings
//   - cyclic references are cut and replaced with Circular
//   - map keys and struct field names are visited in sorted order; the
//     resulting Struct's Fields is itself a Go map and keeps no order,
//     so Hash sorts keys again when it encodes a value
//
// Canonicalize never returns an error: anything it cannot represent
// faithfully is coerced to its string form (spec §7, "falls back to
// string coercion with a debug log").
func Canonicalize(v any) *structpb.Value {
	seen := make(map[uintptr]bool)
	return canon(reflect.ValueOf(v), seen)
}

func canon(rv reflect.Value, seen map[uintptr]bool) *structpb.Value {
	if !rv.IsValid() {
		return structpb.NewNullValue()
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return structpb.NewNullValue()
		}
		if rv.Kind() == reflect.Ptr {
			ptr := rv.Pointer()
			if seen[ptr] {
				return structpb.NewStringValue(Circular)
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		return canon(rv.Elem(), seen)
	case reflect.Bool:
		return structpb.NewBoolValue(rv.Bool())
	case reflect.String:
		return structpb.NewStringValue(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return structpb.NewNumberValue(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return structpb.NewNumberValue(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return structpb.NewNullValue()
		}
		return structpb.NewNumberValue(f)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// byte slices are canonicalized by the caller via the Buffer
			// convention (see BufferValue); a bare []byte here is treated
			// as an opaque string for schema purposes.
			return structpb.NewStringValue(string(rv.Bytes()))
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return structpb.NewListValue(&structpb.ListValue{})
		}
		vals := make([]*structpb.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			vals = append(vals, canon(rv.Index(i), seen))
		}
		return structpb.NewListValue(&structpb.ListValue{Values: vals})
	case reflect.Map:
		return canonMap(rv, seen)
	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
		}
		return canonStruct(rv, seen)
	default:
		return structpb.NewStringValue(fmt.Sprintf("%v", rv.Interface()))
	}
}

func canonMap(rv reflect.Value, seen map[uintptr]bool) *structpb.Value {
	fields := make(map[string]*structpb.Value, rv.Len())
	keys := make([]string, 0, rv.Len())
	kv := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := fmt.Sprintf("%v", iter.Key().Interface())
		val := iter.Value()
		if isUndefined(val) {
			continue
		}
		keys = append(keys, k)
		kv[k] = val
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields[k] = canon(kv[k], seen)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func canonStruct(rv reflect.Value, seen map[uintptr]bool) *structpb.Value {
	t := rv.Type()
	fields := make(map[string]*structpb.Value)
	keys := make([]string, 0, t.NumField())
	fv := make(map[string]reflect.Value)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("canon")
		if name == "" {
			name = f.Name
		}
		if name == "-" {
			continue
		}
		val := rv.Field(i)
		if isUndefined(val) {
			continue
		}
		keys = append(keys, name)
		fv[name] = val
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields[k] = canon(fv[k], seen)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

// isUndefined reports whether v is the Go analog of JavaScript's
// "undefined": a nil interface or nil pointer. It deliberately does NOT
// treat nil/empty maps and slices as undefined (those canonicalize to
// empty object/array, matching the "empty arrays/maps" boundary case),
// nor the zero value of concrete types (0, false, "") — those are
// preserved per spec.
func isUndefined(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
