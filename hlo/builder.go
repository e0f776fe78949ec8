// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

// Builder appends instructions to a new Computation.
//
// Each method returns the InstructionID of the new instruction, to be used as operand of later instructions.
// The declared shapes are taken as given: shape inference is done by the callers (see package shapeinference),
// and verified again by the evaluator.
//
// Errors (e.g. invalid operand ids) are recorded and returned by Build.
type Builder struct {
	name         string
	instructions []*Instruction
	parameters   map[int]InstructionID
	err          error
}

// NewBuilder returns a Builder for a computation with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, parameters: make(map[int]InstructionID)}
}

// Name of the computation being built.
func (b *Builder) Name() string { return b.name }

// Err returns the first error found while adding instructions, if any.
func (b *Builder) Err() error { return b.err }

// NumInstructions returns the number of instructions added so far.
func (b *Builder) NumInstructions() int { return len(b.instructions) }

// Shape returns the declared shape of the instruction with the given id.
func (b *Builder) Shape(id InstructionID) shapes.Shape {
	if !b.validID(id) {
		return shapes.Invalid()
	}
	return b.instructions[id].shape
}

func (b *Builder) validID(id InstructionID) bool {
	return id >= 0 && int(id) < len(b.instructions)
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// AddInstruction adds an instruction with the given opcode, shape and operands, and no other attributes.
// It is used for opcodes without specific attributes, and by the specialized methods.
func (b *Builder) AddInstruction(opcode Opcode, shape shapes.Shape, operands ...InstructionID) InstructionID {
	return b.add(opcode, shape, operands...).id
}

func (b *Builder) add(opcode Opcode, shape shapes.Shape, operands ...InstructionID) *Instruction {
	id := InstructionID(len(b.instructions))
	for ii, operand := range operands {
		if !b.validID(operand) {
			b.setErr(errors.Errorf("computation %q: operand #%d of %s instruction #%d refers to unknown instruction %d",
				b.name, ii, opcode, id, operand))
		}
	}
	if err := shape.Validate(); err != nil {
		b.setErr(errors.WithMessagef(err, "computation %q: %s instruction #%d has an invalid shape", b.name, opcode, id))
	}
	inst := &Instruction{
		id:       id,
		name:     fmt.Sprintf("%s.%d", opcode, id),
		opcode:   opcode,
		shape:    shape.Clone(),
		operands: slices.Clone(operands),
	}
	b.instructions = append(b.instructions, inst)
	return inst
}

// setCalled sets the computations embedded in inst. They must all be given.
func (b *Builder) setCalled(inst *Instruction, called []*Computation) {
	for ii, c := range called {
		if c == nil {
			b.setErr(errors.Errorf("computation %q: %s instruction #%d is missing its embedded computation #%d",
				b.name, inst.opcode, inst.id, ii))
		}
	}
	inst.called = called
}

// SetMetadata attaches debug metadata to an instruction.
func (b *Builder) SetMetadata(id InstructionID, metadata OpMetadata) {
	if b.validID(id) {
		b.instructions[id].metadata = metadata
	}
}

// Parameter adds the parameter with the given number. Parameter numbers must be unique, and at Build time
// they must be contiguous starting from 0.
func (b *Builder) Parameter(number int, shape shapes.Shape, name string) InstructionID {
	inst := b.add(OpcodeParameter, shape)
	inst.parameterNumber = number
	if name != "" {
		inst.name = name
	}
	if _, found := b.parameters[number]; found || number < 0 {
		b.setErr(errors.Errorf("computation %q: parameter number %d is invalid or already used", b.name, number))
	} else {
		b.parameters[number] = inst.id
	}
	return inst.id
}

// Constant adds a constant with the given value. The builder takes ownership of value.
func (b *Builder) Constant(value *literal.Literal) InstructionID {
	inst := b.add(OpcodeConstant, value.Shape())
	inst.literal = value
	return inst.id
}

// Unary adds an element-wise unary operation (including Convert, Copy and IsFinite).
func (b *Builder) Unary(opcode Opcode, shape shapes.Shape, operand InstructionID) InstructionID {
	return b.add(opcode, shape, operand).id
}

// Binary adds an element-wise binary operation, including comparisons.
func (b *Builder) Binary(opcode Opcode, shape shapes.Shape, lhs, rhs InstructionID) InstructionID {
	return b.add(opcode, shape, lhs, rhs).id
}

// Ternary adds an element-wise ternary operation: Select(pred, onTrue, onFalse) or Clamp(min, operand, max).
func (b *Builder) Ternary(opcode Opcode, shape shapes.Shape, a, bb, c InstructionID) InstructionID {
	return b.add(opcode, shape, a, bb, c).id
}

// Broadcast adds a broadcast of operand to shape: axis i of the operand is mapped to axis dimensions[i] of
// the result.
func (b *Builder) Broadcast(shape shapes.Shape, operand InstructionID, dimensions []int) InstructionID {
	inst := b.add(OpcodeBroadcast, shape, operand)
	inst.dimensions = slices.Clone(dimensions)
	return inst.id
}

// Reshape adds a reshape of operand to shape, keeping the elements in row-major order.
func (b *Builder) Reshape(shape shapes.Shape, operand InstructionID) InstructionID {
	return b.add(OpcodeReshape, shape, operand).id
}

// Transpose adds a transposition: axis i of the result is axis permutation[i] of the operand.
func (b *Builder) Transpose(shape shapes.Shape, operand InstructionID, permutation []int) InstructionID {
	inst := b.add(OpcodeTranspose, shape, operand)
	inst.dimensions = slices.Clone(permutation)
	return inst.id
}

// Reverse adds a reversal of the given axes.
func (b *Builder) Reverse(shape shapes.Shape, operand InstructionID, dimensions []int) InstructionID {
	inst := b.add(OpcodeReverse, shape, operand)
	inst.dimensions = slices.Clone(dimensions)
	return inst.id
}

// Concatenate adds a concatenation of the operands along the given axis.
func (b *Builder) Concatenate(shape shapes.Shape, dimension int, operands ...InstructionID) InstructionID {
	inst := b.add(OpcodeConcatenate, shape, operands...)
	inst.dimensions = []int{dimension}
	return inst.id
}

// Slice adds a static slice of operand.
func (b *Builder) Slice(shape shapes.Shape, operand InstructionID, starts, limits, strides []int) InstructionID {
	inst := b.add(OpcodeSlice, shape, operand)
	inst.sliceStarts = slices.Clone(starts)
	inst.sliceLimits = slices.Clone(limits)
	inst.sliceStrides = slices.Clone(strides)
	return inst.id
}

// DynamicSlice adds a slice of operand with the given sizes, starting at the indices given by the rank-1
// startIndices operand.
func (b *Builder) DynamicSlice(shape shapes.Shape, operand, startIndices InstructionID, sizes []int) InstructionID {
	inst := b.add(OpcodeDynamicSlice, shape, operand, startIndices)
	inst.dynamicSliceSizes = slices.Clone(sizes)
	return inst.id
}

// DynamicUpdateSlice adds an update of the region of operand starting at the indices given by the rank-1
// startIndices operand with the values of update.
func (b *Builder) DynamicUpdateSlice(shape shapes.Shape, operand, update, startIndices InstructionID) InstructionID {
	return b.add(OpcodeDynamicUpdateSlice, shape, operand, update, startIndices).id
}

// Pad adds a padding of operand with the scalar padValue.
func (b *Builder) Pad(shape shapes.Shape, operand, padValue InstructionID, padding []PadDimension) InstructionID {
	inst := b.add(OpcodePad, shape, operand, padValue)
	inst.padding = slices.Clone(padding)
	return inst.id
}

// Reduce adds a reduction of the given axes of operand, starting from the scalar init and accumulating
// with the scalar computation toApply(accumulator, value).
func (b *Builder) Reduce(shape shapes.Shape, operand, init InstructionID, dimensions []int, toApply *Computation) InstructionID {
	inst := b.add(OpcodeReduce, shape, operand, init)
	inst.dimensions = slices.Clone(dimensions)
	b.setCalled(inst, []*Computation{toApply})
	return inst.id
}

// Map adds an element-wise application of the scalar computation toApply over the operands.
func (b *Builder) Map(shape shapes.Shape, operands []InstructionID, toApply *Computation) InstructionID {
	inst := b.add(OpcodeMap, shape, operands...)
	b.setCalled(inst, []*Computation{toApply})
	return inst.id
}

// Call adds a call of toApply with the operands as arguments.
func (b *Builder) Call(shape shapes.Shape, operands []InstructionID, toApply *Computation) InstructionID {
	inst := b.add(OpcodeCall, shape, operands...)
	b.setCalled(inst, []*Computation{toApply})
	return inst.id
}

// While adds a loop: starting from init, body is applied while condition returns true.
func (b *Builder) While(shape shapes.Shape, init InstructionID, condition, body *Computation) InstructionID {
	inst := b.add(OpcodeWhile, shape, init)
	b.setCalled(inst, []*Computation{condition, body})
	return inst.id
}

// Convolution adds a convolution of lhs (input) with rhs (kernel).
func (b *Builder) Convolution(shape shapes.Shape, lhs, rhs InstructionID, window []WindowDimension,
	dnums ConvolutionDimensionNumbers) InstructionID {
	inst := b.add(OpcodeConvolution, shape, lhs, rhs)
	inst.window = slices.Clone(window)
	dnums.SpatialDimensions = slices.Clone(dnums.SpatialDimensions)
	dnums.KernelSpatialDimensions = slices.Clone(dnums.KernelSpatialDimensions)
	inst.convDims = &dnums
	return inst.id
}

// Dot adds a dot product: the last axis of lhs is contracted with the first axis of rhs.
func (b *Builder) Dot(shape shapes.Shape, lhs, rhs InstructionID) InstructionID {
	return b.add(OpcodeDot, shape, lhs, rhs).id
}

// Tuple adds a tuple of the operands. Its shape is derived from the operands.
func (b *Builder) Tuple(operands ...InstructionID) InstructionID {
	elementShapes := make([]shapes.Shape, len(operands))
	for ii, operand := range operands {
		elementShapes[ii] = b.Shape(operand)
	}
	return b.add(OpcodeTuple, shapes.MakeTuple(elementShapes...), operands...).id
}

// GetTupleElement adds the extraction of element index of the tuple operand. Its shape is derived from
// the operand.
func (b *Builder) GetTupleElement(operand InstructionID, index int) InstructionID {
	tupleShape := b.Shape(operand)
	shape := shapes.Invalid()
	if tupleShape.IsTuple() && index >= 0 && index < tupleShape.TupleSize() {
		shape = tupleShape.TupleShapes[index]
	} else {
		b.setErr(errors.Errorf("computation %q: cannot get element %d of shape %s", b.name, index, tupleShape))
		shape = shapes.MakeTuple()
	}
	inst := b.add(OpcodeGetTupleElement, shape, operand)
	inst.tupleIndex = index
	return inst.id
}

// CustomCall adds a call to an externally defined target.
func (b *Builder) CustomCall(shape shapes.Shape, target string, operands ...InstructionID) InstructionID {
	inst := b.add(OpcodeCustomCall, shape, operands...)
	inst.customCallTarget = target
	return inst.id
}

// Build returns the computation, with the last added instruction as root.
func (b *Builder) Build() (*Computation, error) {
	return b.BuildWithRoot(InstructionID(len(b.instructions) - 1))
}

// BuildWithRoot returns the computation with the given root.
// The Builder shouldn't be used afterward.
func (b *Builder) BuildWithRoot(root InstructionID) (*Computation, error) {
	return b.build(root, true)
}

// BuildIncomplete is like Build, but doesn't require the parameter numbers to be contiguous. It is used to
// validate computations still being constructed: the computation returned is only good for inspection, it
// can't be evaluated or used in a Module.
func (b *Builder) BuildIncomplete() (*Computation, error) {
	return b.build(InstructionID(len(b.instructions)-1), false)
}

func (b *Builder) build(root InstructionID, contiguousParameters bool) (*Computation, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.instructions) == 0 {
		return nil, errors.Errorf("computation %q is empty", b.name)
	}
	if !b.validID(root) {
		return nil, errors.Errorf("computation %q: invalid root instruction %d", b.name, root)
	}
	c := &Computation{
		name:         b.name,
		instructions: b.instructions,
		root:         root,
	}
	if contiguousParameters {
		c.parameters = make([]InstructionID, len(b.parameters))
		for number, id := range b.parameters {
			if number >= len(b.parameters) {
				return nil, errors.Errorf("computation %q: parameter numbers must be contiguous from 0, got parameter %d with only %d parameters",
					b.name, number, len(b.parameters))
			}
			c.parameters[number] = id
		}
	}
	for _, inst := range c.instructions {
		inst.parent = c
	}
	b.instructions = nil
	return c, nil
}
