package vss

import (
	"fmt"
	"time"
)

// Value is a closed tagged union over the physical scalar kinds (bool,
// int32, uint32, int64, uint64, float, double, string), their homogeneous
// array forms, and an explicit empty variant. Values are immutable once
// constructed: array constructors copy their input and array accessors
// return copies.
type Value struct {
	kind ValueType
	v    any
}

// Empty returns the empty Value.
func Empty() Value { return Value{} }

// Bool constructs a bool Value.
func Bool(v bool) Value { return Value{kind: TypeBool, v: v} }

// Int32 constructs an int32 Value.
func Int32(v int32) Value { return Value{kind: TypeInt32, v: v} }

// Uint32 constructs a uint32 Value.
func Uint32(v uint32) Value { return Value{kind: TypeUint32, v: v} }

// Int64 constructs an int64 Value.
func Int64(v int64) Value { return Value{kind: TypeInt64, v: v} }

// Uint64 constructs a uint64 Value.
func Uint64(v uint64) Value { return Value{kind: TypeUint64, v: v} }

// Float constructs a float (float32) Value.
func Float(v float32) Value { return Value{kind: TypeFloat, v: v} }

// Double constructs a double (float64) Value.
func Double(v float64) Value { return Value{kind: TypeDouble, v: v} }

// String constructs a string Value.
func String(v string) Value { return Value{kind: TypeString, v: v} }

// BoolArray constructs a bool[] Value, copying the input slice.
func BoolArray(vs []bool) Value { return Value{kind: TypeBoolArray, v: cloneSlice(vs)} }

// Int32Array constructs an int32[] Value, copying the input slice.
func Int32Array(vs []int32) Value { return Value{kind: TypeInt32Array, v: cloneSlice(vs)} }

// Uint32Array constructs a uint32[] Value, copying the input slice.
func Uint32Array(vs []uint32) Value { return Value{kind: TypeUint32Array, v: cloneSlice(vs)} }

// Int64Array constructs an int64[] Value, copying the input slice.
func Int64Array(vs []int64) Value { return Value{kind: TypeInt64Array, v: cloneSlice(vs)} }

// Uint64Array constructs a uint64[] Value, copying the input slice.
func Uint64Array(vs []uint64) Value { return Value{kind: TypeUint64Array, v: cloneSlice(vs)} }

// FloatArray constructs a float[] Value, copying the input slice.
func FloatArray(vs []float32) Value { return Value{kind: TypeFloatArray, v: cloneSlice(vs)} }

// DoubleArray constructs a double[] Value, copying the input slice.
func DoubleArray(vs []float64) Value { return Value{kind: TypeDoubleArray, v: cloneSlice(vs)} }

// StringArray constructs a string[] Value, copying the input slice.
func StringArray(vs []string) Value { return Value{kind: TypeStringArray, v: cloneSlice(vs)} }

func cloneSlice[T any](vs []T) []T {
	out := make([]T, len(vs))
	copy(out, vs)
	return out
}

// Type returns the physical ValueType of the Value, or TypeUnspecified for
// the empty variant.
func (v Value) Type() ValueType { return v.kind }

// IsEmpty reports whether the Value is the empty variant.
func (v Value) IsEmpty() bool { return v.kind == TypeUnspecified }

// AsBool returns the bool payload. The second result is false when the
// Value holds a different kind.
func (v Value) AsBool() (bool, bool) { return as[bool](v, TypeBool) }

// AsInt32 returns the int32 payload.
func (v Value) AsInt32() (int32, bool) { return as[int32](v, TypeInt32) }

// AsUint32 returns the uint32 payload.
func (v Value) AsUint32() (uint32, bool) { return as[uint32](v, TypeUint32) }

// AsInt64 returns the int64 payload.
func (v Value) AsInt64() (int64, bool) { return as[int64](v, TypeInt64) }

// AsUint64 returns the uint64 payload.
func (v Value) AsUint64() (uint64, bool) { return as[uint64](v, TypeUint64) }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float32, bool) { return as[float32](v, TypeFloat) }

// AsDouble returns the double payload.
func (v Value) AsDouble() (float64, bool) { return as[float64](v, TypeDouble) }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return as[string](v, TypeString) }

// AsBoolArray returns a copy of the bool[] payload.
func (v Value) AsBoolArray() ([]bool, bool) { return asArray[bool](v, TypeBoolArray) }

// AsInt32Array returns a copy of the int32[] payload.
func (v Value) AsInt32Array() ([]int32, bool) { return asArray[int32](v, TypeInt32Array) }

// AsUint32Array returns a copy of the uint32[] payload.
func (v Value) AsUint32Array() ([]uint32, bool) { return asArray[uint32](v, TypeUint32Array) }

// AsInt64Array returns a copy of the int64[] payload.
func (v Value) AsInt64Array() ([]int64, bool) { return asArray[int64](v, TypeInt64Array) }

// AsUint64Array returns a copy of the uint64[] payload.
func (v Value) AsUint64Array() ([]uint64, bool) { return asArray[uint64](v, TypeUint64Array) }

// AsFloatArray returns a copy of the float[] payload.
func (v Value) AsFloatArray() ([]float32, bool) { return asArray[float32](v, TypeFloatArray) }

// AsDoubleArray returns a copy of the double[] payload.
func (v Value) AsDoubleArray() ([]float64, bool) { return asArray[float64](v, TypeDoubleArray) }

// AsStringArray returns a copy of the string[] payload.
func (v Value) AsStringArray() ([]string, bool) { return asArray[string](v, TypeStringArray) }

func as[T any](v Value, want ValueType) (T, bool) {
	if v.kind != want {
		var zero T
		return zero, false
	}
	return v.v.(T), true
}

func asArray[T any](v Value, want ValueType) ([]T, bool) {
	if v.kind != want {
		return nil, false
	}
	return cloneSlice(v.v.([]T)), true
}

// Equal reports whether two Values hold the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case TypeUnspecified:
		return true
	case TypeBoolArray:
		return slicesEqual[bool](v, other)
	case TypeInt32Array:
		return slicesEqual[int32](v, other)
	case TypeUint32Array:
		return slicesEqual[uint32](v, other)
	case TypeInt64Array:
		return slicesEqual[int64](v, other)
	case TypeUint64Array:
		return slicesEqual[uint64](v, other)
	case TypeFloatArray:
		return slicesEqual[float32](v, other)
	case TypeDoubleArray:
		return slicesEqual[float64](v, other)
	case TypeStringArray:
		return slicesEqual[string](v, other)
	default:
		return v.v == other.v
	}
}

func slicesEqual[T comparable](a, b Value) bool {
	as := a.v.([]T)
	bs := b.v.([]T)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// String renders the Value for logging.
func (v Value) String() string {
	if v.IsEmpty() {
		return "<empty>"
	}
	return fmt.Sprintf("%v", v.v)
}

// QualifiedValue combines a Value with its quality and timestamp.
//
// Invariant: QualityValid implies a non-empty Value. Any other quality means
// the consumer must not trust the value even if one is present; decoding a
// wire datapoint without a value always yields QualityNotAvailable.
type QualifiedValue struct {
	Value     Value
	Quality   Quality
	Timestamp time.Time
}

// Valid constructs a VALID QualifiedValue stamped with the current time.
func Valid(v Value) QualifiedValue {
	return QualifiedValue{Value: v, Quality: QualityValid, Timestamp: time.Now()}
}

// NotAvailable constructs a NOT_AVAILABLE QualifiedValue stamped with the
// current time.
func NotAvailable() QualifiedValue {
	return QualifiedValue{Quality: QualityNotAvailable, Timestamp: time.Now()}
}

// IsValid reports whether the quality is VALID.
func (qv QualifiedValue) IsValid() bool { return qv.Quality == QualityValid }
