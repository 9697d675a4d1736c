package vss

// SignalHandle identifies a resolved signal. The numeric ID is the broker's
// session-scoped identifier and must not be persisted across connections.
type SignalHandle struct {
	Path  string
	ID    int32
	Type  ValueType
	Class SignalClass
}

// Scalar enumerates the Go types that map onto a physical scalar kind.
type Scalar interface {
	~bool | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64 | ~string
}

// ScalarOrArray extends Scalar with the homogeneous array kinds.
type ScalarOrArray interface {
	Scalar | ~[]bool | ~[]int32 | ~[]uint32 | ~[]int64 | ~[]uint64 | ~[]float32 | ~[]float64 | ~[]string
}

// TypedHandle binds a SignalHandle to a Go type checked at resolve time.
// Obtaining one through ResolveTyped guarantees T is physically compatible
// with the signal's declared type, so typed gets and sets cannot mismatch.
type TypedHandle[T ScalarOrArray] struct {
	SignalHandle
}

// TypeOf returns the physical ValueType corresponding to T.
func TypeOf[T ScalarOrArray]() ValueType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return TypeBool
	case int32:
		return TypeInt32
	case uint32:
		return TypeUint32
	case int64:
		return TypeInt64
	case uint64:
		return TypeUint64
	case float32:
		return TypeFloat
	case float64:
		return TypeDouble
	case string:
		return TypeString
	case []bool:
		return TypeBoolArray
	case []int32:
		return TypeInt32Array
	case []uint32:
		return TypeUint32Array
	case []int64:
		return TypeInt64Array
	case []uint64:
		return TypeUint64Array
	case []float32:
		return TypeFloatArray
	case []float64:
		return TypeDoubleArray
	case []string:
		return TypeStringArray
	default:
		return TypeUnspecified
	}
}

// ValueOf wraps a typed Go value in a Value of the matching kind.
func ValueOf[T ScalarOrArray](v T) Value {
	switch tv := any(v).(type) {
	case bool:
		return Bool(tv)
	case int32:
		return Int32(tv)
	case uint32:
		return Uint32(tv)
	case int64:
		return Int64(tv)
	case uint64:
		return Uint64(tv)
	case float32:
		return Float(tv)
	case float64:
		return Double(tv)
	case string:
		return String(tv)
	case []bool:
		return BoolArray(tv)
	case []int32:
		return Int32Array(tv)
	case []uint32:
		return Uint32Array(tv)
	case []int64:
		return Int64Array(tv)
	case []uint64:
		return Uint64Array(tv)
	case []float32:
		return FloatArray(tv)
	case []float64:
		return DoubleArray(tv)
	case []string:
		return StringArray(tv)
	default:
		return Empty()
	}
}

// ValueAs extracts a typed Go value from a Value. The second result is
// false when the Value's kind does not match T exactly; widening is a
// resolve-time concern, not an extraction-time one.
func ValueAs[T ScalarOrArray](v Value) (T, bool) {
	var zero T
	if v.kind != TypeOf[T]() || v.IsEmpty() {
		return zero, false
	}
	switch v.kind {
	case TypeBoolArray:
		return any(cloneSlice(v.v.([]bool))).(T), true
	case TypeInt32Array:
		return any(cloneSlice(v.v.([]int32))).(T), true
	case TypeUint32Array:
		return any(cloneSlice(v.v.([]uint32))).(T), true
	case TypeInt64Array:
		return any(cloneSlice(v.v.([]int64))).(T), true
	case TypeUint64Array:
		return any(cloneSlice(v.v.([]uint64))).(T), true
	case TypeFloatArray:
		return any(cloneSlice(v.v.([]float32))).(T), true
	case TypeDoubleArray:
		return any(cloneSlice(v.v.([]float64))).(T), true
	case TypeStringArray:
		return any(cloneSlice(v.v.([]string))).(T), true
	default:
		return v.v.(T), true
	}
}
