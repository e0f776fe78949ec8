// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"math"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// execCompare dispatches on the dtype of the operands, since the output is always Bool.
func execCompare(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	switch dtype := operands[0].DType(); dtype {
	case shapes.Bool:
		return compareBool(inst, operands[0], operands[1])
	case shapes.Int8:
		return compareOrdered[int8](inst, operands[0], operands[1])
	case shapes.Int32:
		return compareOrdered[int32](inst, operands[0], operands[1])
	case shapes.Int64:
		return compareOrdered[int64](inst, operands[0], operands[1])
	case shapes.UInt8:
		return compareOrdered[uint8](inst, operands[0], operands[1])
	case shapes.UInt32:
		return compareOrdered[uint32](inst, operands[0], operands[1])
	case shapes.UInt64:
		return compareOrdered[uint64](inst, operands[0], operands[1])
	case shapes.Float32:
		return compareOrdered[float32](inst, operands[0], operands[1])
	case shapes.Float64:
		return compareOrdered[float64](inst, operands[0], operands[1])
	default:
		return nil, status.Unimplementedf("unhandled primitive type for %s: %s", inst.Opcode(), dtype)
	}
}

func compareOrdered[T number](inst *hlo.Instruction, lhs, rhs *literal.Literal) (*literal.Literal, error) {
	var compareFn func(x, y T) bool
	switch inst.Opcode() {
	case hlo.OpcodeEq:
		compareFn = func(x, y T) bool { return x == y }
	case hlo.OpcodeNe:
		compareFn = func(x, y T) bool { return x != y }
	case hlo.OpcodeGe:
		compareFn = func(x, y T) bool { return x >= y }
	case hlo.OpcodeGt:
		compareFn = func(x, y T) bool { return x > y }
	case hlo.OpcodeLe:
		compareFn = func(x, y T) bool { return x <= y }
	case hlo.OpcodeLt:
		compareFn = func(x, y T) bool { return x < y }
	default:
		return nil, status.Internalf("%s is not a comparison", inst.Opcode())
	}
	return populateCompare(inst, lhs, rhs, compareFn)
}

func compareBool(inst *hlo.Instruction, lhs, rhs *literal.Literal) (*literal.Literal, error) {
	switch inst.Opcode() {
	case hlo.OpcodeEq:
		return populateCompare(inst, lhs, rhs, func(x, y bool) bool { return x == y })
	case hlo.OpcodeNe:
		return populateCompare(inst, lhs, rhs, func(x, y bool) bool { return x != y })
	}
	return nil, status.InvalidArgumentf("comparison %s is not defined for booleans", inst.Opcode())
}

func populateCompare[T supported](inst *hlo.Instruction, lhs, rhs *literal.Literal, compareFn func(x, y T) bool) (*literal.Literal, error) {
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(indices []int) bool {
		return compareFn(literal.Get[T](lhs, indices...), literal.Get[T](rhs, indices...))
	})
	return result, err
}

// execIsFinite dispatches on the dtype of the operand, which must be a float.
func execIsFinite(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	result := literal.New(inst.Shape())
	var err error
	switch dtype := operand.DType(); dtype {
	case shapes.Float32:
		err = literal.Populate(result, func(indices []int) bool {
			x := float64(literal.Get[float32](operand, indices...))
			return !math.IsInf(x, 0) && !math.IsNaN(x)
		})
	case shapes.Float64:
		err = literal.Populate(result, func(indices []int) bool {
			x := literal.Get[float64](operand, indices...)
			return !math.IsInf(x, 0) && !math.IsNaN(x)
		})
	case shapes.Float16:
		return nil, status.Unimplementedf("unhandled primitive type for %s: %s", inst.Opcode(), dtype)
	default:
		return nil, status.InvalidArgumentf("expected element type in shape to be float for %s, got %s",
			inst.Opcode(), dtype)
	}
	return result, err
}
