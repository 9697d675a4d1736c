package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// parseValue converts CLI text into a Value matching the signal's declared
// type. Array values are comma separated.
func parseValue(t vss.ValueType, raw string) (vss.Value, error) {
	switch t {
	case vss.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as bool: %w", raw, err)
		}
		return vss.Bool(b), nil
	case vss.TypeInt8, vss.TypeInt16, vss.TypeInt32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as int32: %w", raw, err)
		}
		return vss.Int32(int32(n)), nil
	case vss.TypeInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as int64: %w", raw, err)
		}
		return vss.Int64(n), nil
	case vss.TypeUint8, vss.TypeUint16, vss.TypeUint32:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as uint32: %w", raw, err)
		}
		return vss.Uint32(uint32(n)), nil
	case vss.TypeUint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as uint64: %w", raw, err)
		}
		return vss.Uint64(n), nil
	case vss.TypeFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as float: %w", raw, err)
		}
		return vss.Float(float32(f)), nil
	case vss.TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return vss.Empty(), fmt.Errorf("parse %q as double: %w", raw, err)
		}
		return vss.Double(f), nil
	case vss.TypeString:
		return vss.String(raw), nil
	case vss.TypeStringArray:
		return vss.StringArray(splitItems(raw)), nil
	case vss.TypeBoolArray:
		items := splitItems(raw)
		out := make([]bool, len(items))
		for i, item := range items {
			b, err := strconv.ParseBool(item)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as bool: %w", item, err)
			}
			out[i] = b
		}
		return vss.BoolArray(out), nil
	case vss.TypeInt8Array, vss.TypeInt16Array, vss.TypeInt32Array:
		items := splitItems(raw)
		out := make([]int32, len(items))
		for i, item := range items {
			n, err := strconv.ParseInt(item, 10, 32)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as int32: %w", item, err)
			}
			out[i] = int32(n)
		}
		return vss.Int32Array(out), nil
	case vss.TypeInt64Array:
		items := splitItems(raw)
		out := make([]int64, len(items))
		for i, item := range items {
			n, err := strconv.ParseInt(item, 10, 64)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as int64: %w", item, err)
			}
			out[i] = n
		}
		return vss.Int64Array(out), nil
	case vss.TypeUint8Array, vss.TypeUint16Array, vss.TypeUint32Array:
		items := splitItems(raw)
		out := make([]uint32, len(items))
		for i, item := range items {
			n, err := strconv.ParseUint(item, 10, 32)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as uint32: %w", item, err)
			}
			out[i] = uint32(n)
		}
		return vss.Uint32Array(out), nil
	case vss.TypeUint64Array:
		items := splitItems(raw)
		out := make([]uint64, len(items))
		for i, item := range items {
			n, err := strconv.ParseUint(item, 10, 64)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as uint64: %w", item, err)
			}
			out[i] = n
		}
		return vss.Uint64Array(out), nil
	case vss.TypeFloatArray:
		items := splitItems(raw)
		out := make([]float32, len(items))
		for i, item := range items {
			f, err := strconv.ParseFloat(item, 32)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as float: %w", item, err)
			}
			out[i] = float32(f)
		}
		return vss.FloatArray(out), nil
	case vss.TypeDoubleArray:
		items := splitItems(raw)
		out := make([]float64, len(items))
		for i, item := range items {
			f, err := strconv.ParseFloat(item, 64)
			if err != nil {
				return vss.Empty(), fmt.Errorf("parse element %q as double: %w", item, err)
			}
			out[i] = f
		}
		return vss.DoubleArray(out), nil
	default:
		return vss.Empty(), fmt.Errorf("unsupported type %s for CLI writes", t)
	}
}

func splitItems(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
