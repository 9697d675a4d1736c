// Package vss provides the value and type model for VSS signals: the Value
// tagged union, signal quality, logical value types with their physical
// narrowing table, signal classification, and signal handles.
package vss

import "strings"

// Quality indicates whether a signal's current value should be trusted.
type Quality int

const (
	// QualityUnknown means the quality could not be determined.
	QualityUnknown Quality = iota
	// QualityValid means the value is trustworthy.
	QualityValid
	// QualityNotAvailable means no value is available for the signal.
	QualityNotAvailable
	// QualityInvalid means the value is present but known to be wrong.
	QualityInvalid
	// QualityStale means the value has not been refreshed recently.
	QualityStale
)

// String returns the string representation of a Quality.
func (q Quality) String() string {
	switch q {
	case QualityValid:
		return "VALID"
	case QualityNotAvailable:
		return "NOT_AVAILABLE"
	case QualityInvalid:
		return "INVALID"
	case QualityStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// SignalClass classifies a signal and drives RPC routing in Client.Set:
// actuator writes use the Actuate call, sensor/attribute writes use
// PublishValue.
type SignalClass int

const (
	// ClassUnknown is an unclassified signal.
	ClassUnknown SignalClass = iota
	// ClassSensor is a read-only measured signal.
	ClassSensor
	// ClassActuator is a controllable signal with target and actual values.
	ClassActuator
	// ClassAttribute is a static configuration value.
	ClassAttribute
)

// String returns the string representation of a SignalClass.
func (c SignalClass) String() string {
	switch c {
	case ClassSensor:
		return "SENSOR"
	case ClassActuator:
		return "ACTUATOR"
	case ClassAttribute:
		return "ATTRIBUTE"
	default:
		return "UNKNOWN"
	}
}

// SignalClassFromString parses a signal class name (case-insensitive).
func SignalClassFromString(s string) SignalClass {
	switch strings.ToUpper(s) {
	case "SENSOR":
		return ClassSensor
	case "ACTUATOR":
		return ClassActuator
	case "ATTRIBUTE":
		return ClassAttribute
	default:
		return ClassUnknown
	}
}

// ValueType is the logical type tag of a signal. Physical types correspond
// one-to-one with Value variants. The narrowing types (int8, int16, uint8,
// uint16 and their array forms) never appear as Value variants: they exist
// only as metadata describing what a path's wire-level physical type
// logically represents.
type ValueType int

const (
	// TypeUnspecified is the zero value sentinel.
	TypeUnspecified ValueType = iota

	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
	TypeString

	TypeBoolArray
	TypeInt8Array
	TypeInt16Array
	TypeInt32Array
	TypeInt64Array
	TypeUint8Array
	TypeUint16Array
	TypeUint32Array
	TypeUint64Array
	TypeFloatArray
	TypeDoubleArray
	TypeStringArray
)

// String returns the canonical name of a ValueType.
func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBoolArray:
		return "bool[]"
	case TypeInt8Array:
		return "int8[]"
	case TypeInt16Array:
		return "int16[]"
	case TypeInt32Array:
		return "int32[]"
	case TypeInt64Array:
		return "int64[]"
	case TypeUint8Array:
		return "uint8[]"
	case TypeUint16Array:
		return "uint16[]"
	case TypeUint32Array:
		return "uint32[]"
	case TypeUint64Array:
		return "uint64[]"
	case TypeFloatArray:
		return "float[]"
	case TypeDoubleArray:
		return "double[]"
	case TypeStringArray:
		return "string[]"
	default:
		return "unspecified"
	}
}

// ValueTypeFromString parses a value type name. Both "int8[]" and
// "int8_array" forms are accepted, case-insensitively. Returns
// TypeUnspecified for unknown names.
func ValueTypeFromString(s string) ValueType {
	name := strings.ToLower(strings.TrimSpace(s))
	if base, ok := strings.CutSuffix(name, "_array"); ok {
		name = base + "[]"
	}
	if name == "boolean" {
		name = "bool"
	}
	for t := TypeBool; t <= TypeStringArray; t++ {
		if t.String() == name {
			return t
		}
	}
	return TypeUnspecified
}

// IsArray reports whether the type is an array form.
func (t ValueType) IsArray() bool {
	return t >= TypeBoolArray && t <= TypeStringArray
}

// IsNarrowing reports whether the type is a narrowing logical type that has
// no direct wire representation.
func (t ValueType) IsNarrowing() bool {
	switch t {
	case TypeInt8, TypeInt16, TypeUint8, TypeUint16,
		TypeInt8Array, TypeInt16Array, TypeUint8Array, TypeUint16Array:
		return true
	default:
		return false
	}
}

// PhysicalType maps a logical type to the physical wire type that carries
// it: int8 and int16 are carried as int32, uint8 and uint16 as uint32,
// element-wise for arrays. All other types map to themselves.
func PhysicalType(t ValueType) ValueType {
	switch t {
	case TypeInt8, TypeInt16:
		return TypeInt32
	case TypeUint8, TypeUint16:
		return TypeUint32
	case TypeInt8Array, TypeInt16Array:
		return TypeInt32Array
	case TypeUint8Array, TypeUint16Array:
		return TypeUint32Array
	default:
		return t
	}
}

// widens reports whether a logical type may be carried inside a strictly
// wider physical type. These are the only recognized widening pairs.
func widens(logical, physical ValueType) bool {
	switch logical {
	case TypeFloat:
		return physical == TypeDouble
	case TypeInt32:
		return physical == TypeInt64
	case TypeUint32:
		return physical == TypeUint64
	case TypeFloatArray:
		return physical == TypeDoubleArray
	case TypeInt32Array:
		return physical == TypeInt64Array
	case TypeUint32Array:
		return physical == TypeUint64Array
	default:
		return false
	}
}

// ArePhysicallyCompatible reports whether a logical type (declared by the
// application or the VSS schema) is compatible with a physical wire type
// (reported by the broker): they are equal, related by the narrowing table,
// or related by a recognized widening pair.
func ArePhysicallyCompatible(logical, physical ValueType) bool {
	if logical == physical {
		return true
	}
	if PhysicalType(logical) == physical {
		return true
	}
	return widens(logical, physical)
}
