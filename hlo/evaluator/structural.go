// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"github.com/pkg/errors"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// registerStructural registers the handlers that move elements around without computing new values,
// plus Select, Convert, Reduce and Map, for all supported types.
func registerStructural[T supported](v visitor) {
	v[hlo.OpcodeBroadcast] = execBroadcast[T]
	v[hlo.OpcodeConvert] = execConvert
	v[hlo.OpcodeReverse] = execReverse[T]
	v[hlo.OpcodeSlice] = execSlice[T]
	v[hlo.OpcodeDynamicSlice] = execDynamicSlice[T]
	v[hlo.OpcodeDynamicUpdateSlice] = execDynamicUpdateSlice[T]
	v[hlo.OpcodePad] = execPad[T]
	v[hlo.OpcodeSelect] = execSelect[T]
	v[hlo.OpcodeReduce] = execReduce[T]
	v[hlo.OpcodeMap] = execMap
}

// withDeclaredLayout returns the literal stored with the layouts of shape, if shape has any.
func withDeclaredLayout(l *literal.Literal, shape shapes.Shape) (*literal.Literal, error) {
	if !shape.HasLayout() || l.Shape().EqualWithLayout(shape) {
		return l, nil
	}
	return l.RelayoutShape(shape)
}

func execBroadcast[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	result := literal.New(inst.Shape())
	if operand.Shape().IsScalar() {
		value := literal.Get[T](operand)
		return result, literal.Populate(result, func([]int) T { return value })
	}
	dims := inst.Dimensions()
	operandDims := operand.Shape().Dimensions
	operandIndices := make([]int, len(dims))
	err := literal.Populate(result, func(indices []int) T {
		for ii, axis := range dims {
			if operandDims[ii] == 1 {
				operandIndices[ii] = 0
			} else {
				operandIndices[ii] = indices[axis]
			}
		}
		return literal.Get[T](operand, operandIndices...)
	})
	return result, err
}

func execConvert(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	result, err := operands[0].Convert(inst.Shape().DType)
	if err != nil {
		return nil, status.InvalidArgumentf("%s: %v", inst.Name(), err)
	}
	return withDeclaredLayout(result, inst.Shape())
}

func execReverse[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	shape := inst.Shape()
	fromIndices := make([]int, shape.Rank())
	result := literal.New(shape)
	err := literal.Populate(result, func(indices []int) T {
		copy(fromIndices, indices)
		for _, axis := range inst.Dimensions() {
			fromIndices[axis] = shape.Dimensions[axis] - 1 - indices[axis]
		}
		return literal.Get[T](operand, fromIndices...)
	})
	return result, err
}

func execSlice[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	starts, strides := inst.SliceStarts(), inst.SliceStrides()
	operandIndices := make([]int, len(starts))
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(indices []int) T {
		for axis, idx := range indices {
			operandIndices[axis] = starts[axis] + idx*strides[axis]
		}
		return literal.Get[T](operand, operandIndices...)
	})
	return result, err
}

// wrappedStartIndices reads the start indices of a dynamic slice, and wraps them modulo the dimensions
// of the operand, so out-of-range starts wrap around instead of failing.
func wrappedStartIndices(startIndices *literal.Literal, dims []int) []int {
	starts := make([]int, len(dims))
	for axis, dim := range dims {
		if dim == 0 {
			continue
		}
		if startIndices.DType() == shapes.UInt64 {
			starts[axis] = int(literal.Get[uint64](startIndices, axis) % uint64(dim))
			continue
		}
		start := startIndices.GetInt64(axis) % int64(dim)
		if start < 0 {
			start += int64(dim)
		}
		starts[axis] = int(start)
	}
	return starts
}

func execDynamicSlice[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	dims := operand.Shape().Dimensions
	starts := wrappedStartIndices(operands[1], dims)
	operandIndices := make([]int, len(dims))
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(indices []int) T {
		for axis, idx := range indices {
			operandIndices[axis] = (idx + starts[axis]) % dims[axis]
		}
		return literal.Get[T](operand, operandIndices...)
	})
	return result, err
}

func execDynamicUpdateSlice[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand, update := operands[0], operands[1]
	dims := operand.Shape().Dimensions
	starts := wrappedStartIndices(operands[2], dims)
	result, err := withDeclaredLayout(operand.Clone(), inst.Shape())
	if err != nil {
		return nil, err
	}
	resultIndices := make([]int, len(dims))
	for updateIndices := range update.Shape().Iter() {
		for axis, idx := range updateIndices {
			resultIndices[axis] = (idx + starts[axis]) % dims[axis]
		}
		literal.Set(result, literal.Get[T](update, updateIndices...), resultIndices...)
	}
	return result, nil
}

// execPad fills the result with the padding value, and then copies each operand element to its position
// after interior padding and low edge padding. Elements falling outside the result (negative edge padding)
// are dropped.
func execPad[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand := operands[0]
	padValue := literal.Get[T](operands[1])
	shape := inst.Shape()
	result := literal.New(shape)
	if err := literal.Populate(result, func([]int) T { return padValue }); err != nil {
		return nil, err
	}
	padding := inst.Padding()
	targetIndices := make([]int, shape.Rank())
operandLoop:
	for operandIndices := range operand.Shape().Iter() {
		for axis, idx := range operandIndices {
			target := padding[axis].EdgeLow + idx*(padding[axis].Interior+1)
			if target < 0 || target >= shape.Dimensions[axis] {
				continue operandLoop
			}
			targetIndices[axis] = target
		}
		literal.Set(result, literal.Get[T](operand, operandIndices...), targetIndices...)
	}
	return result, nil
}

func execReshape(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	result, err := operands[0].Reshape(inst.Shape().Dimensions...)
	if err != nil {
		return nil, status.InvalidArgumentf("%s: %v", inst.Name(), err)
	}
	return withDeclaredLayout(result, inst.Shape())
}

func execTranspose(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	result, err := operands[0].Transpose(inst.Dimensions()...)
	if err != nil {
		return nil, status.InvalidArgumentf("%s: %v", inst.Name(), err)
	}
	return withDeclaredLayout(result, inst.Shape())
}

func execConcatenate(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	shape := inst.Shape()
	axis := inst.Dimensions()[0]
	result := literal.New(shape)
	srcBase := make([]int, shape.Rank())
	destBase := make([]int, shape.Rank())
	for ii, operand := range operands {
		if err := result.CopySliceFrom(operand, srcBase, destBase, operand.Shape().Dimensions); err != nil {
			return nil, errors.WithMessagef(err, "concatenating operand #%d", ii)
		}
		destBase[axis] += operand.Shape().Dimensions[axis]
	}
	return result, nil
}

func execCopy(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	return withDeclaredLayout(operands[0].Clone(), inst.Shape())
}

func execTuple(_ *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	return literal.NewTuple(operands...), nil
}

func execGetTupleElement(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	return operands[0].TupleElement(inst.TupleIndex()), nil
}
