// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"strings"

	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

// InstructionID is the index of an Instruction in its Computation's arena.
type InstructionID int

// InvalidInstructionID marks an unset instruction reference.
const InvalidInstructionID InstructionID = -1

// PadDimension configures the padding of one axis: EdgeLow and EdgeHigh elements (possibly negative, which crops)
// are added before and after the axis, and Interior elements between every pair of elements.
type PadDimension struct {
	EdgeLow, EdgeHigh, Interior int
}

// WindowDimension configures one axis of a convolution (or reduce-window) window.
type WindowDimension struct {
	Size        int
	Stride      int
	PaddingLow  int
	PaddingHigh int

	// WindowDilation is the dilation factor of the window (kernel), BaseDilation the dilation of the input.
	WindowDilation int
	BaseDilation   int
}

// ConvolutionDimensionNumbers describes which axes of the input, kernel and output of a convolution play each role.
// BatchDimension, FeatureDimension and SpatialDimensions apply to both input and output.
type ConvolutionDimensionNumbers struct {
	BatchDimension    int
	FeatureDimension  int
	SpatialDimensions []int

	KernelInputFeatureDimension  int
	KernelOutputFeatureDimension int
	KernelSpatialDimensions      []int
}

// DefaultConvolutionDimensionNumbers returns the dimension numbers for the usual "NCHW" input and output layouts
// and "OIHW" kernel layout, with the given number of spatial dimensions.
func DefaultConvolutionDimensionNumbers(numSpatialDims int) ConvolutionDimensionNumbers {
	dnums := ConvolutionDimensionNumbers{
		BatchDimension:               0,
		FeatureDimension:             1,
		KernelOutputFeatureDimension: 0,
		KernelInputFeatureDimension:  1,
	}
	for ii := range numSpatialDims {
		dnums.SpatialDimensions = append(dnums.SpatialDimensions, ii+2)
		dnums.KernelSpatialDimensions = append(dnums.KernelSpatialDimensions, ii+2)
	}
	return dnums
}

// OpMetadata is debug information attached by the client to an instruction.
type OpMetadata struct {
	OpType string
	OpName string
}

// Instruction is a node of a Computation: an operation with a declared output shape and operands.
//
// Instructions are owned by their Computation, and refer to their operands by InstructionID within that
// same computation.
type Instruction struct {
	id       InstructionID
	name     string
	opcode   Opcode
	shape    shapes.Shape
	operands []InstructionID
	parent   *Computation

	// Opcode specific attributes.
	literal           *literal.Literal
	parameterNumber   int
	dimensions        []int
	sliceStarts       []int
	sliceLimits       []int
	sliceStrides      []int
	dynamicSliceSizes []int
	padding           []PadDimension
	window            []WindowDimension
	convDims          *ConvolutionDimensionNumbers
	called            []*Computation
	tupleIndex        int
	customCallTarget  string
	metadata          OpMetadata
}

// ID returns the position of the instruction in its computation.
func (inst *Instruction) ID() InstructionID { return inst.id }

// Name returns the unique (within the computation) name of the instruction.
func (inst *Instruction) Name() string { return inst.name }

// Opcode of the instruction.
func (inst *Instruction) Opcode() Opcode { return inst.opcode }

// Shape returns the declared output shape of the instruction.
func (inst *Instruction) Shape() shapes.Shape { return inst.shape }

// Parent returns the computation owning the instruction.
func (inst *Instruction) Parent() *Computation { return inst.parent }

// OperandCount returns the number of operands.
func (inst *Instruction) OperandCount() int { return len(inst.operands) }

// OperandIDs returns the ids of the operands. It shouldn't be modified.
func (inst *Instruction) OperandIDs() []InstructionID { return inst.operands }

// Operand returns the i-th operand.
func (inst *Instruction) Operand(i int) *Instruction {
	return inst.parent.instructions[inst.operands[i]]
}

// Operands returns the operand instructions.
func (inst *Instruction) Operands() []*Instruction {
	operands := make([]*Instruction, len(inst.operands))
	for ii := range inst.operands {
		operands[ii] = inst.Operand(ii)
	}
	return operands
}

// Literal returns the value of a Constant instruction.
func (inst *Instruction) Literal() *literal.Literal { return inst.literal }

// ParameterNumber returns the position of a Parameter instruction in the computation's parameter list.
func (inst *Instruction) ParameterNumber() int { return inst.parameterNumber }

// Dimensions returns the axes attribute: the operand axes mapped by a Broadcast, the reduced axes of a Reduce,
// the permutation of a Transpose, the reversed axes of a Reverse or the single concatenation axis of Concatenate.
func (inst *Instruction) Dimensions() []int { return inst.dimensions }

// SliceStarts returns the start indices of a Slice.
func (inst *Instruction) SliceStarts() []int { return inst.sliceStarts }

// SliceLimits returns the limit (exclusive) indices of a Slice.
func (inst *Instruction) SliceLimits() []int { return inst.sliceLimits }

// SliceStrides returns the strides of a Slice.
func (inst *Instruction) SliceStrides() []int { return inst.sliceStrides }

// DynamicSliceSizes returns the sizes of a DynamicSlice.
func (inst *Instruction) DynamicSliceSizes() []int { return inst.dynamicSliceSizes }

// Padding returns the per-axis padding configuration of a Pad.
func (inst *Instruction) Padding() []PadDimension { return inst.padding }

// Window returns the per-spatial-axis window configuration of a Convolution.
func (inst *Instruction) Window() []WindowDimension { return inst.window }

// ConvolutionDimensionNumbers returns the axes roles of a Convolution.
func (inst *Instruction) ConvolutionDimensionNumbers() *ConvolutionDimensionNumbers { return inst.convDims }

// CalledComputations returns the embedded computations: the applied computation for Map, Reduce and Call,
// the condition and body (in this order) for While.
func (inst *Instruction) CalledComputations() []*Computation { return inst.called }

// ToApply returns the computation applied by Map, Reduce or Call.
func (inst *Instruction) ToApply() *Computation {
	if len(inst.called) == 0 {
		return nil
	}
	return inst.called[0]
}

// TupleIndex returns the element index of a GetTupleElement.
func (inst *Instruction) TupleIndex() int { return inst.tupleIndex }

// CustomCallTarget returns the target name of a CustomCall.
func (inst *Instruction) CustomCallTarget() string { return inst.customCallTarget }

// Metadata returns the debug metadata of the instruction.
func (inst *Instruction) Metadata() OpMetadata { return inst.metadata }

// SetMetadata sets the debug metadata of the instruction.
func (inst *Instruction) SetMetadata(metadata OpMetadata) { inst.metadata = metadata }

// String returns a one-line textual description of the instruction.
func (inst *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%s = %s %s(", inst.name, inst.shape, inst.opcode)
	for ii := range inst.operands {
		if ii > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%%%s", inst.Operand(ii).name)
	}
	sb.WriteString(")")
	var attrs []string
	switch inst.opcode {
	case OpcodeConstant:
		attrs = append(attrs, inst.literal.String())
	case OpcodeParameter:
		attrs = append(attrs, fmt.Sprintf("parameter_number=%d", inst.parameterNumber))
	case OpcodeGetTupleElement:
		attrs = append(attrs, fmt.Sprintf("index=%d", inst.tupleIndex))
	case OpcodeCustomCall:
		attrs = append(attrs, fmt.Sprintf("target=%q", inst.customCallTarget))
	}
	if len(inst.dimensions) > 0 {
		attrs = append(attrs, fmt.Sprintf("dimensions=%v", inst.dimensions))
	}
	if inst.sliceStarts != nil {
		attrs = append(attrs, fmt.Sprintf("slice={starts=%v, limits=%v, strides=%v}",
			inst.sliceStarts, inst.sliceLimits, inst.sliceStrides))
	}
	if inst.dynamicSliceSizes != nil {
		attrs = append(attrs, fmt.Sprintf("dynamic_slice_sizes=%v", inst.dynamicSliceSizes))
	}
	if inst.padding != nil {
		attrs = append(attrs, fmt.Sprintf("padding=%v", inst.padding))
	}
	if inst.window != nil {
		attrs = append(attrs, fmt.Sprintf("window=%v", inst.window))
	}
	for _, c := range inst.called {
		attrs = append(attrs, fmt.Sprintf("calls=%%%s", c.name))
	}
	if len(attrs) > 0 {
		sb.WriteString(", ")
		sb.WriteString(strings.Join(attrs, ", "))
	}
	return sb.String()
}
