// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package computation

import (
	"fmt"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

// Handle identifies a computation registered in a Tracker.
type Handle int64

// VersionedHandle identifies one version of a computation: the computation as it was after its first
// Version instructions were added.
type VersionedHandle struct {
	Handle  Handle
	Version int64
}

// String implements fmt.Stringer.
func (vh VersionedHandle) String() string {
	return fmt.Sprintf("computation#%d@v%d", vh.Handle, vh.Version)
}

// OpRequest describes one instruction to add to a computation. Only the fields relevant to the Opcode
// need to be set. It is gob encodable, which is how computations are snapshotted.
//
// Shape is the declared output shape, except for Tuple and GetTupleElement where it is derived from
// the operands. It is verified against the inferred shape when the request is added.
type OpRequest struct {
	Opcode   hlo.Opcode
	Shape    shapes.Shape
	Operands []hlo.InstructionID

	// Parameter.
	ParameterNumber int
	ParameterName   string

	// Constant.
	Literal *literal.Literal

	// Broadcast, Transpose, Reverse, Reduce axes; Concatenate uses Dimensions[0].
	Dimensions []int

	// Slice.
	SliceStarts, SliceLimits, SliceStrides []int

	// DynamicSlice.
	DynamicSliceSizes []int

	// Pad.
	Padding []hlo.PadDimension

	// Convolution.
	Window                      []hlo.WindowDimension
	ConvolutionDimensionNumbers *hlo.ConvolutionDimensionNumbers

	// GetTupleElement.
	TupleIndex int

	// Computations embedded by Reduce, Map and Call (one), and While (condition and body). A Version <= 0
	// refers to the version of the computation at the time the request is added.
	Computations []VersionedHandle

	// CustomCall.
	CustomCallTarget string

	Metadata hlo.OpMetadata
}

// addTo adds the instruction described by the request to the builder, with the operands remapped by
// the given function, and the embedded computations already built.
func (req *OpRequest) addTo(b *hlo.Builder, remap func(hlo.InstructionID) hlo.InstructionID,
	called []*hlo.Computation) hlo.InstructionID {
	operands := make([]hlo.InstructionID, len(req.Operands))
	for ii, operand := range req.Operands {
		operands[ii] = remap(operand)
	}
	operand := func(i int) hlo.InstructionID {
		if i >= len(operands) {
			return -1
		}
		return operands[i]
	}
	toApply := func() *hlo.Computation {
		if len(called) == 0 {
			return nil
		}
		return called[0]
	}
	op := req.Opcode
	var id hlo.InstructionID
	switch {
	case op == hlo.OpcodeParameter:
		id = b.Parameter(req.ParameterNumber, req.Shape, req.ParameterName)
	case op == hlo.OpcodeConstant:
		if req.Literal == nil {
			id = b.AddInstruction(op, shapes.Invalid())
		} else {
			id = b.Constant(req.Literal.Clone())
		}
	case op == hlo.OpcodeBroadcast:
		id = b.Broadcast(req.Shape, operand(0), req.Dimensions)
	case op == hlo.OpcodeReshape:
		id = b.Reshape(req.Shape, operand(0))
	case op == hlo.OpcodeTranspose:
		id = b.Transpose(req.Shape, operand(0), req.Dimensions)
	case op == hlo.OpcodeReverse:
		id = b.Reverse(req.Shape, operand(0), req.Dimensions)
	case op == hlo.OpcodeConcatenate:
		dim := -1
		if len(req.Dimensions) > 0 {
			dim = req.Dimensions[0]
		}
		id = b.Concatenate(req.Shape, dim, operands...)
	case op == hlo.OpcodeSlice:
		id = b.Slice(req.Shape, operand(0), req.SliceStarts, req.SliceLimits, req.SliceStrides)
	case op == hlo.OpcodeDynamicSlice:
		id = b.DynamicSlice(req.Shape, operand(0), operand(1), req.DynamicSliceSizes)
	case op == hlo.OpcodeDynamicUpdateSlice:
		id = b.DynamicUpdateSlice(req.Shape, operand(0), operand(1), operand(2))
	case op == hlo.OpcodePad:
		id = b.Pad(req.Shape, operand(0), operand(1), req.Padding)
	case op == hlo.OpcodeReduce:
		id = b.Reduce(req.Shape, operand(0), operand(1), req.Dimensions, toApply())
	case op == hlo.OpcodeMap:
		id = b.Map(req.Shape, operands, toApply())
	case op == hlo.OpcodeCall:
		id = b.Call(req.Shape, operands, toApply())
	case op == hlo.OpcodeWhile:
		var condition, body *hlo.Computation
		if len(called) == 2 {
			condition, body = called[0], called[1]
		}
		id = b.While(req.Shape, operand(0), condition, body)
	case op == hlo.OpcodeConvolution:
		var dnums hlo.ConvolutionDimensionNumbers
		if req.ConvolutionDimensionNumbers != nil {
			dnums = *req.ConvolutionDimensionNumbers
		}
		id = b.Convolution(req.Shape, operand(0), operand(1), req.Window, dnums)
	case op == hlo.OpcodeDot:
		id = b.Dot(req.Shape, operand(0), operand(1))
	case op == hlo.OpcodeTuple:
		id = b.Tuple(operands...)
	case op == hlo.OpcodeGetTupleElement:
		id = b.GetTupleElement(operand(0), req.TupleIndex)
	case op == hlo.OpcodeCustomCall:
		id = b.CustomCall(req.Shape, req.CustomCallTarget, operands...)
	case op.IsElementwiseUnary():
		id = b.Unary(op, req.Shape, operand(0))
	case op.IsElementwiseBinary():
		id = b.Binary(op, req.Shape, operand(0), operand(1))
	case op == hlo.OpcodeClamp || op == hlo.OpcodeSelect:
		id = b.Ternary(op, req.Shape, operand(0), operand(1), operand(2))
	default:
		id = b.AddInstruction(op, req.Shape, operands...)
	}
	b.SetMetadata(id, req.Metadata)
	return id
}
