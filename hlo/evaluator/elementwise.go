// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"math"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
)

// integer enumerates the Go types of the integer dtypes supported by the evaluator.
type integer interface {
	int8 | int32 | int64 | uint8 | uint32 | uint64
}

// float enumerates the Go types of the float dtypes supported by the evaluator.
// Float16 is not supported.
type float interface {
	float32 | float64
}

// number enumerates the Go types of the numeric dtypes supported by the evaluator.
type number interface {
	integer | float
}

// supported enumerates the Go types of all dtypes supported by the evaluator.
type supported interface {
	bool | number
}

func newBoolVisitor() visitor {
	v := make(visitor)
	registerStructural[bool](v)
	v[hlo.OpcodeNot] = unaryOp(func(x bool) bool { return !x })
	v[hlo.OpcodeAnd] = binaryOp(func(x, y bool) bool { return x && y })
	v[hlo.OpcodeOr] = binaryOp(func(x, y bool) bool { return x || y })
	return v
}

func newIntegerVisitor[T integer]() visitor {
	v := make(visitor)
	registerStructural[T](v)
	registerNumber[T](v)
	v[hlo.OpcodeAbs] = unaryOp(func(x T) T {
		if x < 0 {
			return -x
		}
		return x
	})
	v[hlo.OpcodeNot] = unaryOp(func(x T) T { return ^x })
	v[hlo.OpcodeAnd] = binaryOp(func(x, y T) T { return x & y })
	v[hlo.OpcodeOr] = binaryOp(func(x, y T) T { return x | y })
	v[hlo.OpcodeDivide] = binaryOp(integerDivide[T])
	v[hlo.OpcodeRemainder] = binaryOp(integerRemainder[T])
	v[hlo.OpcodePower] = binaryOp(integerPower[T])
	v[hlo.OpcodeMaximum] = binaryOp(func(x, y T) T { return max(x, y) })
	v[hlo.OpcodeMinimum] = binaryOp(func(x, y T) T { return min(x, y) })
	v[hlo.OpcodeClamp] = clampOp(func(low, x, high T) T { return max(low, min(x, high)) })
	return v
}

func newFloatVisitor[T float]() visitor {
	v := make(visitor)
	registerStructural[T](v)
	registerNumber[T](v)
	v[hlo.OpcodeAbs] = unaryOp(func(x T) T { return T(math.Abs(float64(x))) })
	v[hlo.OpcodeCeil] = unaryOp(func(x T) T { return T(math.Ceil(float64(x))) })
	v[hlo.OpcodeFloor] = unaryOp(func(x T) T { return T(math.Floor(float64(x))) })
	v[hlo.OpcodeExp] = unaryOp(func(x T) T { return T(math.Exp(float64(x))) })
	v[hlo.OpcodeLog] = unaryOp(func(x T) T { return T(math.Log(float64(x))) })
	v[hlo.OpcodeTanh] = unaryOp(func(x T) T { return T(math.Tanh(float64(x))) })
	v[hlo.OpcodeDivide] = binaryOp(func(x, y T) T { return x / y })
	v[hlo.OpcodeRemainder] = binaryOp(func(x, y T) T { return T(math.Mod(float64(x), float64(y))) })
	v[hlo.OpcodePower] = binaryOp(func(x, y T) T { return T(math.Pow(float64(x), float64(y))) })
	v[hlo.OpcodeMaximum] = binaryOp(floatMax[T])
	v[hlo.OpcodeMinimum] = binaryOp(floatMin[T])
	v[hlo.OpcodeClamp] = clampOp(func(low, x, high T) T { return floatMax(low, floatMin(x, high)) })
	return v
}

// registerNumber registers the handlers common to all numeric types.
func registerNumber[T number](v visitor) {
	v[hlo.OpcodeNegate] = unaryOp(func(x T) T { return -x })
	v[hlo.OpcodeSign] = unaryOp(func(x T) T {
		var zero T
		switch {
		case x > zero:
			return zero + 1
		case x < zero:
			return zero - 1
		}
		return zero
	})
	v[hlo.OpcodeAdd] = binaryOp(func(x, y T) T { return x + y })
	v[hlo.OpcodeSubtract] = binaryOp(func(x, y T) T { return x - y })
	v[hlo.OpcodeMultiply] = binaryOp(func(x, y T) T { return x * y })
	v[hlo.OpcodeDot] = execDot[T]
	v[hlo.OpcodeConvolution] = execConvolution[T]
}

// integerDivide follows the conventions of the compiled backends for the cases undefined in Go:
// division by zero returns -1 (all bits set for unsigned types), and MinInt / -1 returns MinInt.
func integerDivide[T integer](x, y T) T {
	var zero T
	if y == zero {
		return zero - 1
	}
	return x / y // Go defines MinInt / -1 == MinInt.
}

// integerRemainder returns the dividend for a remainder by zero, and 0 for MinInt % -1.
func integerRemainder[T integer](x, y T) T {
	var zero T
	if y == zero {
		return x
	}
	return x % y
}

// integerPower computes x**y by squaring. Negative exponents truncate towards zero: only 1 and -1 have
// non-zero results.
func integerPower[T integer](x, y T) T {
	var zero T
	one := zero + 1
	if y < zero {
		switch {
		case x == one:
			return one
		case x == zero-one:
			if y%2 == zero {
				return one
			}
			return x
		}
		return zero
	}
	result := one
	for y > zero {
		if y&one == one {
			result *= x
		}
		x *= x
		y >>= 1
	}
	return result
}

// floatMax returns the maximum, ignoring a single NaN operand.
func floatMax[T float](x, y T) T {
	if x != x {
		return y
	}
	if y != y {
		return x
	}
	return max(x, y)
}

// floatMin returns the minimum, ignoring a single NaN operand.
func floatMin[T float](x, y T) T {
	if x != x {
		return y
	}
	if y != y {
		return x
	}
	return min(x, y)
}

func unaryOp[T supported](fn func(x T) T) handler {
	return func(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
		operand := operands[0]
		result := literal.New(inst.Shape())
		err := literal.Populate(result, func(indices []int) T {
			return fn(literal.Get[T](operand, indices...))
		})
		return result, err
	}
}

func binaryOp[T supported](fn func(x, y T) T) handler {
	return func(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
		lhs, rhs := operands[0], operands[1]
		result := literal.New(inst.Shape())
		err := literal.Populate(result, func(indices []int) T {
			return fn(literal.Get[T](lhs, indices...), literal.Get[T](rhs, indices...))
		})
		return result, err
	}
}

// clampOp handles Clamp(low, operand, high), where the bounds may be scalars.
func clampOp[T number](fn func(low, x, high T) T) handler {
	return func(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
		low, operand, high := operands[0], operands[1], operands[2]
		result := literal.New(inst.Shape())
		err := literal.Populate(result, func(indices []int) T {
			return fn(scalarOrElement[T](low, indices), literal.Get[T](operand, indices...),
				scalarOrElement[T](high, indices))
		})
		return result, err
	}
}

func scalarOrElement[T supported](l *literal.Literal, indices []int) T {
	if l.Shape().IsScalar() {
		return literal.Get[T](l)
	}
	return literal.Get[T](l, indices...)
}

func execSelect[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	pred, onTrue, onFalse := operands[0], operands[1], operands[2]
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(indices []int) T {
		if literal.Get[bool](pred, indices...) {
			return literal.Get[T](onTrue, indices...)
		}
		return literal.Get[T](onFalse, indices...)
	})
	return result, err
}
