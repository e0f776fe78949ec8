// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// InstructionShape infers the output shape of the instruction from the shapes of its operands and its
// attributes.
//
// Parameters return their declared shape, and constants the shape of their literal. For Broadcast, Reshape
// and Convert the target dimensions (or dtype) are taken from the declared shape, since they are not
// otherwise part of the instruction.
func InstructionShape(inst *hlo.Instruction) (shapes.Shape, error) {
	operandShapes := make([]shapes.Shape, inst.OperandCount())
	for ii, operand := range inst.Operands() {
		operandShapes[ii] = operand.Shape()
	}
	if err := checkOperandCount(inst.Opcode(), len(operandShapes)); err != nil {
		return shapes.Invalid(), err
	}
	op := inst.Opcode()
	switch op {
	case hlo.OpcodeReduce, hlo.OpcodeMap, hlo.OpcodeCall:
		if inst.ToApply() == nil {
			return shapes.Invalid(), status.InvalidArgumentf("%s %s has no computation to apply", op, inst.Name())
		}
	case hlo.OpcodeWhile:
		if len(inst.CalledComputations()) != 2 {
			return shapes.Invalid(), status.InvalidArgumentf("while %s requires a condition and a body", inst.Name())
		}
	}
	switch {
	case op == hlo.OpcodeConvert:
		return ConvertOp(operandShapes[0], inst.Shape().DType)
	case op.IsElementwiseUnary():
		return UnaryOp(op, operandShapes[0])
	case op.IsElementwiseBinary():
		return BinaryOp(op, operandShapes[0], operandShapes[1])
	}
	switch op {
	case hlo.OpcodeParameter:
		return inst.Shape().WithoutLayout(), nil
	case hlo.OpcodeConstant:
		if inst.Literal() == nil {
			return shapes.Invalid(), status.InvalidArgumentf("constant %s has no value", inst.Name())
		}
		return inst.Literal().Shape().WithoutLayout(), nil
	case hlo.OpcodeSelect:
		return SelectOp(operandShapes[0], operandShapes[1], operandShapes[2])
	case hlo.OpcodeClamp:
		return ClampOp(operandShapes[0], operandShapes[1], operandShapes[2])
	case hlo.OpcodeBroadcast:
		return BroadcastOp(operandShapes[0], inst.Shape().Dimensions, inst.Dimensions())
	case hlo.OpcodeReshape:
		return ReshapeOp(operandShapes[0], inst.Shape().Dimensions)
	case hlo.OpcodeTranspose:
		return TransposeOp(operandShapes[0], inst.Dimensions())
	case hlo.OpcodeReverse:
		return ReverseOp(operandShapes[0], inst.Dimensions())
	case hlo.OpcodeConcatenate:
		if len(inst.Dimensions()) != 1 {
			return shapes.Invalid(), status.InvalidArgumentf("concatenate %s requires one dimension, got %v",
				inst.Name(), inst.Dimensions())
		}
		return ConcatenateOp(operandShapes, inst.Dimensions()[0])
	case hlo.OpcodeSlice:
		return SliceOp(operandShapes[0], inst.SliceStarts(), inst.SliceLimits(), inst.SliceStrides())
	case hlo.OpcodeDynamicSlice:
		return DynamicSliceOp(operandShapes[0], operandShapes[1], inst.DynamicSliceSizes())
	case hlo.OpcodeDynamicUpdateSlice:
		return DynamicUpdateSliceOp(operandShapes[0], operandShapes[1], operandShapes[2])
	case hlo.OpcodePad:
		return PadOp(operandShapes[0], operandShapes[1], inst.Padding())
	case hlo.OpcodeReduce:
		return ReduceOp(operandShapes[0], operandShapes[1], inst.Dimensions(), inst.ToApply().ProgramShape())
	case hlo.OpcodeMap:
		return MapOp(operandShapes, inst.ToApply().ProgramShape())
	case hlo.OpcodeCall:
		return CallOp(operandShapes, inst.ToApply().ProgramShape())
	case hlo.OpcodeWhile:
		called := inst.CalledComputations()
		return WhileOp(operandShapes[0], called[0].ProgramShape(), called[1].ProgramShape())
	case hlo.OpcodeDot:
		return DotOp(operandShapes[0], operandShapes[1])
	case hlo.OpcodeConvolution:
		dnums := inst.ConvolutionDimensionNumbers()
		if dnums == nil {
			return shapes.Invalid(), status.InvalidArgumentf("convolution %s has no dimension numbers", inst.Name())
		}
		return ConvolutionOp(operandShapes[0], operandShapes[1], inst.Window(), *dnums)
	case hlo.OpcodeTuple:
		return TupleOp(operandShapes), nil
	case hlo.OpcodeGetTupleElement:
		return GetTupleElementOp(operandShapes[0], inst.TupleIndex())
	}
	return shapes.Invalid(), status.Unimplementedf("shape inference for %s is not implemented", op)
}

// checkOperandCount verifies the number of operands for opcodes with a fixed arity.
func checkOperandCount(op hlo.Opcode, count int) error {
	want := -1
	switch {
	case op.IsElementwiseUnary():
		want = 1
	case op.IsElementwiseBinary():
		want = 2
	}
	switch op {
	case hlo.OpcodeParameter, hlo.OpcodeConstant:
		want = 0
	case hlo.OpcodeSelect, hlo.OpcodeClamp, hlo.OpcodeDynamicUpdateSlice:
		want = 3
	case hlo.OpcodeBroadcast, hlo.OpcodeReshape, hlo.OpcodeTranspose, hlo.OpcodeReverse, hlo.OpcodeSlice,
		hlo.OpcodeGetTupleElement, hlo.OpcodeWhile:
		want = 1
	case hlo.OpcodeDynamicSlice, hlo.OpcodePad, hlo.OpcodeReduce, hlo.OpcodeDot, hlo.OpcodeConvolution:
		want = 2
	case hlo.OpcodeConcatenate:
		if count == 0 {
			return status.InvalidArgumentf("%s requires at least one operand", op)
		}
	}
	if want >= 0 && count != want {
		return status.InvalidArgumentf("%s requires %d operands, got %d", op, want, count)
	}
	return nil
}
