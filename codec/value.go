// Package codec serializes values, requests, replies, and change records
// for the wire. The value representation is built on
// google.golang.org/protobuf's structpb well-known types: a Value is a
// discriminated union of null, bool, number, string, list, and nested
// struct, which covers everything spec.md's wire format requires except
// raw byte strings. Byte strings are carried as base64 text leaves
// (see Bytes/AsBytes) since structpb has no native bytes kind.
package codec

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Value is an immutable, opaque wire value. There is no exported way to
// mutate a Value in place; callers that want to change state must build
// a new Value and pass it through Set or Atomic. This is deliberate: it
// resolves spec.md's open question about nested-mutation-in-place
// silently failing to propagate, by making the access pattern that
// caused it impossible to express.
type Value struct {
	pb *structpb.Value
}

// Null is the wire representation of the absence of a value.
var Null = Value{pb: structpb.NewNullValue()}

// ToValue converts a Go value into its wire representation. Supported
// inputs are nil, bool, float64/int/int64, string, []byte, []any, and
// map[string]any (recursively). Any other type returns an error.
func ToValue(v any) (Value, error) {
	if b, ok := v.([]byte); ok {
		v = encodeBytes(b)
	}
	if m, ok := v.(map[string]any); ok {
		encoded, err := encodeMap(m)
		if err != nil {
			return Value{}, err
		}
		v = encoded
	}
	if s, ok := v.([]any); ok {
		encoded, err := encodeSlice(s)
		if err != nil {
			return Value{}, err
		}
		v = encoded
	}

	pb, err := structpb.NewValue(v)
	if err != nil {
		return Value{}, fmt.Errorf("codec: unsupported value %T: %w", v, err)
	}
	return Value{pb: pb}, nil
}

// MustValue is ToValue for callers that already know the input encodes
// cleanly, such as literals in tests.
func MustValue(v any) Value {
	val, err := ToValue(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Bytes wraps a byte string as a Value, base64-encoding it so it can
// travel inside a structpb string leaf.
func Bytes(b []byte) Value {
	return Value{pb: structpb.NewStringValue(encodeBytes(b))}
}

const bytesPrefix = "zproc:base64:"

func encodeBytes(b []byte) string {
	return bytesPrefix + base64.StdEncoding.EncodeToString(b)
}

func encodeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		val, err := ToValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = val.pb.AsInterface()
	}
	return out, nil
}

func encodeSlice(s []any) ([]any, error) {
	out := make([]any, len(s))
	for i, v := range s {
		val, err := ToValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = val.pb.AsInterface()
	}
	return out, nil
}

// Interface returns the Go representation of a Value: nil, bool,
// float64, string, []any, or map[string]any. Byte strings encoded via
// Bytes come back as their base64 form; use AsBytes to decode them.
func (v Value) Interface() any {
	if v.pb == nil {
		return nil
	}
	return v.pb.AsInterface()
}

// AsBytes decodes a Value produced by Bytes back into a byte string.
func (v Value) AsBytes() ([]byte, bool) {
	s, ok := v.Interface().(string)
	if !ok || len(s) < len(bytesPrefix) || s[:len(bytesPrefix)] != bytesPrefix {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s[len(bytesPrefix):])
	if err != nil {
		return nil, false
	}
	return b, true
}

// IsNull reports whether v is the wire null value or the zero Value.
func (v Value) IsNull() bool {
	if v.pb == nil {
		return true
	}
	_, isNull := v.pb.GetKind().(*structpb.Value_NullValue)
	return isNull
}

// Equal reports structural equality of two Values, the comparison the
// state server uses to decide whether a key's value changed across a
// mutation.
func Equal(a, b Value) bool {
	an, bn := a.IsNull(), b.IsNull()
	if an || bn {
		return an == bn
	}
	return valuesEqual(a.pb, b.pb)
}

func valuesEqual(a, b *structpb.Value) bool {
	switch av := a.GetKind().(type) {
	case *structpb.Value_NullValue:
		_, ok := b.GetKind().(*structpb.Value_NullValue)
		return ok
	case *structpb.Value_BoolValue:
		bv, ok := b.GetKind().(*structpb.Value_BoolValue)
		return ok && av.BoolValue == bv.BoolValue
	case *structpb.Value_NumberValue:
		bv, ok := b.GetKind().(*structpb.Value_NumberValue)
		return ok && av.NumberValue == bv.NumberValue
	case *structpb.Value_StringValue:
		bv, ok := b.GetKind().(*structpb.Value_StringValue)
		return ok && av.StringValue == bv.StringValue
	case *structpb.Value_ListValue:
		bv, ok := b.GetKind().(*structpb.Value_ListValue)
		if !ok || len(av.ListValue.GetValues()) != len(bv.ListValue.GetValues()) {
			return false
		}
		for i, av2 := range av.ListValue.GetValues() {
			if !valuesEqual(av2, bv.ListValue.GetValues()[i]) {
				return false
			}
		}
		return true
	case *structpb.Value_StructValue:
		bv, ok := b.GetKind().(*structpb.Value_StructValue)
		if !ok || len(av.StructValue.GetFields()) != len(bv.StructValue.GetFields()) {
			return false
		}
		for k, fv := range av.StructValue.GetFields() {
			other, exists := bv.StructValue.GetFields()[k]
			if !exists || !valuesEqual(fv, other) {
				return false
			}
		}
		return true
	default:
		return b.GetKind() == nil
	}
}
