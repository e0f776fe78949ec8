// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package literal

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

func elementAt(data any, pos int) any {
	switch d := data.(type) {
	case []bool:
		return d[pos]
	case []int8:
		return d[pos]
	case []int16:
		return d[pos]
	case []int32:
		return d[pos]
	case []int64:
		return d[pos]
	case []uint8:
		return d[pos]
	case []uint16:
		return d[pos]
	case []uint32:
		return d[pos]
	case []uint64:
		return d[pos]
	case []float16.Float16:
		return d[pos]
	case []float32:
		return d[pos]
	case []float64:
		return d[pos]
	}
	exceptions.Panicf("unknown literal storage type %T", data)
	return nil
}

func setElementAt(data any, pos int, value any) {
	switch d := data.(type) {
	case []bool:
		d[pos] = value.(bool)
	case []int8:
		d[pos] = value.(int8)
	case []int16:
		d[pos] = value.(int16)
	case []int32:
		d[pos] = value.(int32)
	case []int64:
		d[pos] = value.(int64)
	case []uint8:
		d[pos] = value.(uint8)
	case []uint16:
		d[pos] = value.(uint16)
	case []uint32:
		d[pos] = value.(uint32)
	case []uint64:
		d[pos] = value.(uint64)
	case []float16.Float16:
		d[pos] = value.(float16.Float16)
	case []float32:
		d[pos] = value.(float32)
	case []float64:
		d[pos] = value.(float64)
	default:
		exceptions.Panicf("unknown literal storage type %T", data)
	}
}

func cloneStorage(data any) any {
	switch d := data.(type) {
	case []bool:
		return slices.Clone(d)
	case []int8:
		return slices.Clone(d)
	case []int16:
		return slices.Clone(d)
	case []int32:
		return slices.Clone(d)
	case []int64:
		return slices.Clone(d)
	case []uint8:
		return slices.Clone(d)
	case []uint16:
		return slices.Clone(d)
	case []uint32:
		return slices.Clone(d)
	case []uint64:
		return slices.Clone(d)
	case []float16.Float16:
		return slices.Clone(d)
	case []float32:
		return slices.Clone(d)
	case []float64:
		return slices.Clone(d)
	}
	exceptions.Panicf("unknown literal storage type %T", data)
	return nil
}

type valueKind int

const (
	kindBool valueKind = iota
	kindSigned
	kindUnsigned
	kindFloat
)

// scalarValue is an element normalized to one of the 4 widest Go representations.
type scalarValue struct {
	kind valueKind
	b    bool
	i    int64
	u    uint64
	f    float64
}

func valueOf(v any) scalarValue {
	switch x := v.(type) {
	case bool:
		return scalarValue{kind: kindBool, b: x}
	case int8:
		return scalarValue{kind: kindSigned, i: int64(x)}
	case int16:
		return scalarValue{kind: kindSigned, i: int64(x)}
	case int32:
		return scalarValue{kind: kindSigned, i: int64(x)}
	case int64:
		return scalarValue{kind: kindSigned, i: x}
	case uint8:
		return scalarValue{kind: kindUnsigned, u: uint64(x)}
	case uint16:
		return scalarValue{kind: kindUnsigned, u: uint64(x)}
	case uint32:
		return scalarValue{kind: kindUnsigned, u: uint64(x)}
	case uint64:
		return scalarValue{kind: kindUnsigned, u: x}
	case float16.Float16:
		return scalarValue{kind: kindFloat, f: float64(x.Float32())}
	case float32:
		return scalarValue{kind: kindFloat, f: float64(x)}
	case float64:
		return scalarValue{kind: kindFloat, f: x}
	}
	exceptions.Panicf("unknown literal element type %T", v)
	return scalarValue{}
}

func (v scalarValue) asBool() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindSigned:
		return v.i != 0
	case kindUnsigned:
		return v.u != 0
	default:
		return v.f != 0
	}
}

func (v scalarValue) asInt64() int64 {
	switch v.kind {
	case kindBool:
		if v.b {
			return 1
		}
		return 0
	case kindSigned:
		return v.i
	case kindUnsigned:
		return int64(v.u)
	default:
		return int64(v.f)
	}
}

func (v scalarValue) asUint64() uint64 {
	switch v.kind {
	case kindUnsigned:
		return v.u
	case kindFloat:
		if v.f >= 0 {
			return uint64(v.f)
		}
		return uint64(int64(v.f))
	default:
		return uint64(v.asInt64())
	}
}

func (v scalarValue) asFloat64() float64 {
	switch v.kind {
	case kindFloat:
		return v.f
	case kindUnsigned:
		return float64(v.u)
	default:
		return float64(v.asInt64())
	}
}

// convertValue converts v to the Go type T, with C-like conversion semantics.
func convertValue[T Element](v scalarValue) T {
	var result T
	switch p := any(&result).(type) {
	case *bool:
		*p = v.asBool()
	case *int8:
		*p = int8(v.asInt64())
	case *int16:
		*p = int16(v.asInt64())
	case *int32:
		*p = int32(v.asInt64())
	case *int64:
		*p = v.asInt64()
	case *uint8:
		*p = uint8(v.asUint64())
	case *uint16:
		*p = uint16(v.asUint64())
	case *uint32:
		*p = uint32(v.asUint64())
	case *uint64:
		*p = v.asUint64()
	case *float16.Float16:
		*p = float16.Fromfloat32(float32(v.asFloat64()))
	case *float32:
		*p = float32(v.asFloat64())
	case *float64:
		*p = v.asFloat64()
	}
	return result
}

func convertStorage[T Element](src any, size int) []T {
	dst := make([]T, size)
	for ii := range dst {
		dst[ii] = convertValue[T](valueOf(elementAt(src, ii)))
	}
	return dst
}
