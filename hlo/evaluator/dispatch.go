// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"github.com/gomlx/exceptions"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/shapeinference"
	"github.com/gomlx/hlo/types"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// handler computes the value of an instruction given the values of its operands.
type handler func(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error)

// visitor maps opcodes to the handlers specialized for one element type.
type visitor map[hlo.Opcode]handler

var (
	// typedVisitors is indexed by the dtype of the output of the instruction.
	// A nil entry means the dtype is not supported.
	typedVisitors [shapes.NumDTypes]visitor

	// typedOpcodes are dispatched by the dtype of their output.
	typedOpcodes = types.SetWith(
		hlo.OpcodeAbs, hlo.OpcodeBroadcast, hlo.OpcodeCeil, hlo.OpcodeConvert, hlo.OpcodeExp, hlo.OpcodeFloor,
		hlo.OpcodeLog, hlo.OpcodeNot, hlo.OpcodeNegate, hlo.OpcodeSign, hlo.OpcodeTanh,
		hlo.OpcodeAdd, hlo.OpcodeSubtract, hlo.OpcodeMultiply, hlo.OpcodeDivide, hlo.OpcodeRemainder,
		hlo.OpcodePower, hlo.OpcodeMaximum, hlo.OpcodeMinimum, hlo.OpcodeAnd, hlo.OpcodeOr,
		hlo.OpcodeClamp, hlo.OpcodeSelect, hlo.OpcodeReverse, hlo.OpcodeConvolution, hlo.OpcodeDot, hlo.OpcodePad,
		hlo.OpcodeDynamicSlice, hlo.OpcodeDynamicUpdateSlice, hlo.OpcodeReduce, hlo.OpcodeSlice, hlo.OpcodeMap,
	)

	// genericHandlers don't depend on the dtype of the output, or dispatch on the dtype of their operands.
	// Set in init, since Call and While dispatch back through it.
	genericHandlers map[hlo.Opcode]handler
)

func init() {
	genericHandlers = map[hlo.Opcode]handler{
		hlo.OpcodeReshape:         execReshape,
		hlo.OpcodeTranspose:       execTranspose,
		hlo.OpcodeConcatenate:     execConcatenate,
		hlo.OpcodeCopy:            execCopy,
		hlo.OpcodeIsFinite:        execIsFinite,
		hlo.OpcodeEq:              execCompare,
		hlo.OpcodeNe:              execCompare,
		hlo.OpcodeGe:              execCompare,
		hlo.OpcodeGt:              execCompare,
		hlo.OpcodeLe:              execCompare,
		hlo.OpcodeLt:              execCompare,
		hlo.OpcodeTuple:           execTuple,
		hlo.OpcodeGetTupleElement: execGetTupleElement,
		hlo.OpcodeCall:            execCall,
		hlo.OpcodeWhile:           execWhile,
	}

	typedVisitors[shapes.Bool] = newBoolVisitor()
	typedVisitors[shapes.Int8] = newIntegerVisitor[int8]()
	typedVisitors[shapes.Int32] = newIntegerVisitor[int32]()
	typedVisitors[shapes.Int64] = newIntegerVisitor[int64]()
	typedVisitors[shapes.UInt8] = newIntegerVisitor[uint8]()
	typedVisitors[shapes.UInt32] = newIntegerVisitor[uint32]()
	typedVisitors[shapes.UInt64] = newIntegerVisitor[uint64]()
	typedVisitors[shapes.Float32] = newFloatVisitor[float32]()
	typedVisitors[shapes.Float64] = newFloatVisitor[float64]()
}

// IsSupported returns whether the evaluator can handle the opcode (for some dtypes).
func IsSupported(op hlo.Opcode) bool {
	_, found := genericHandlers[op]
	return found || typedOpcodes.Has(op) || op == hlo.OpcodeParameter || op == hlo.OpcodeConstant
}

// dispatch checks the instruction and calls the handler for its opcode and dtype.
func dispatch(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	op := inst.Opcode()
	if !IsSupported(op) {
		return nil, status.Unimplementedf("unhandled HLO ops for the evaluator: %s", op)
	}
	if err := checkNoImplicitBroadcast(inst); err != nil {
		return nil, err
	}
	if err := checkShapeLaw(inst); err != nil {
		return nil, err
	}
	if fn, found := genericHandlers[op]; found {
		return fn(inst, operands)
	}
	dtype := inst.Shape().DType
	var v visitor
	if dtype >= 0 && int(dtype) < len(typedVisitors) {
		v = typedVisitors[dtype]
	}
	if v == nil {
		return nil, status.Unimplementedf("unhandled primitive type for %s: %s", op, dtype)
	}
	fn, found := v[op]
	if !found {
		return nil, status.Unimplementedf("unhandled HLO ops for the evaluator: %s for %s", op, dtype)
	}
	return fn(inst, operands)
}

// checkNoImplicitBroadcast verifies that element-wise operations have operands with the same dimensions as
// the output. Only the bounds of Clamp may be scalars.
func checkNoImplicitBroadcast(inst *hlo.Instruction) error {
	op := inst.Opcode()
	if !op.IsElementwise() || op == hlo.OpcodeCopy {
		return nil
	}
	shape := inst.Shape()
	for ii, operand := range inst.Operands() {
		operandShape := operand.Shape()
		if op == hlo.OpcodeClamp && ii != 1 && operandShape.IsScalar() {
			continue
		}
		if !operandShape.IsArray() || !shape.IsArray() || !operandShape.EqualDimensions(shape) {
			return status.InvalidArgumentf(
				"implicit broadcasting is not supported by the evaluator, shape mismatch for %s: output shape %s vs operand #%d shape %s",
				inst.Name(), shape, ii, operandShape)
		}
	}
	return nil
}

// checkShapeLaw verifies the declared shape of the instruction matches the shape inferred from its operands.
//
// An error from shape inference (invalid operands) is returned as is. A mismatch between the declared and inferred
// shapes means the computation was built incorrectly: it panics with an internal error.
func checkShapeLaw(inst *hlo.Instruction) error {
	inferred, err := shapeinference.InstructionShape(inst)
	if err != nil {
		return err
	}
	if !inferred.Equal(inst.Shape()) {
		exceptions.Panicf("internal error in %s: return shape set to %s but it is inferred to be %s",
			inst.Name(), inst.Shape(), inferred)
	}
	return nil
}
