// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package computation

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/evaluator"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// newAdder registers a computation adding two scalar float32 parameters.
func newAdder(t *testing.T, tracker *Tracker) Handle {
	scalar := shapes.Scalar(shapes.F32)
	h := tracker.NewComputation("add")
	x, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterNumber: 0, ParameterName: "x"}))
	y, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterNumber: 1, ParameterName: "y"}))
	_, _ = must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeAdd, Shape: scalar, Operands: []hlo.InstructionID{x, y}}))
	return h
}

func TestVersions(t *testing.T) {
	tracker := NewTracker()
	vec := shapes.Make(shapes.F32, 3)
	h := tracker.NewComputation("main")
	assert.Equal(t, int64(0), must.M1(tracker.Versioned(h)).Version)

	c, shape, err := tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeConstant, Literal: literal.Vector([]float32{1, 2, 3})})
	require.NoError(t, err)
	assert.Equal(t, hlo.InstructionID(0), c)
	assert.True(t, vec.Equal(shape))
	p, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: vec, ParameterName: "p"}))
	sum, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeAdd, Shape: vec, Operands: []hlo.InstructionID{c, p}}))
	assert.Equal(t, hlo.InstructionID(2), sum)

	// Version 1 is only the constant.
	v1 := must.M1(tracker.Build(VersionedHandle{Handle: h, Version: 1}))
	assert.Equal(t, hlo.OpcodeConstant, v1.Root().Opcode())
	assert.Equal(t, 0, v1.NumParameters())

	vh := must.M1(tracker.Versioned(h))
	assert.Equal(t, int64(3), vh.Version)
	ps := must.M1(tracker.ProgramShape(vh))
	require.Len(t, ps.Parameters, 1)
	assert.True(t, vec.Equal(ps.Result))

	module := must.M1(tracker.BuildModule(vh, nil))
	result := must.M1(evaluator.New().EvaluateModule(module, literal.Vector([]float32{10, 20, 30})))
	assert.Equal(t, []float32{11, 22, 33}, literal.Data[float32](result))

	// Built computations are cached.
	assert.Same(t, must.M1(tracker.Build(vh)), must.M1(tracker.Build(vh)))

	_, err = tracker.Build(VersionedHandle{Handle: h, Version: 0})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = tracker.Build(VersionedHandle{Handle: h, Version: 4})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = tracker.Build(VersionedHandle{Handle: 1000, Version: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestOpErrors(t *testing.T) {
	tracker := NewTracker()
	h := tracker.NewComputation("main")
	c := must.M1(func() (hlo.InstructionID, error) {
		id, _, err := tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeConstant, Literal: literal.Vector([]float32{1, 2})})
		return id, err
	}())

	// Declared shape doesn't match.
	_, _, err := tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeNegate, Shape: shapes.Make(shapes.F32, 3), Operands: []hlo.InstructionID{c}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Unknown operand.
	_, _, err = tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeNegate, Shape: shapes.Make(shapes.F32, 2), Operands: []hlo.InstructionID{7}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Unknown embedded computation.
	_, _, err = tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeCall, Shape: shapes.Make(shapes.F32, 2), Operands: []hlo.InstructionID{c},
		Computations: []VersionedHandle{{Handle: 99}}})
	assert.Equal(t, codes.NotFound, status.Code(err))

	// Failed requests don't change the version.
	assert.Equal(t, int64(1), must.M1(tracker.Versioned(h)).Version)

	_, _, err = tracker.Op(42, &OpRequest{Opcode: hlo.OpcodeConstant, Literal: literal.Scalar(int32(1))})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestEmbeddedVersions(t *testing.T) {
	tracker := NewTracker()
	scalar := shapes.Scalar(shapes.F32)
	add := newAdder(t, tracker)

	h := tracker.NewComputation("main")
	x, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterName: "x"}))
	// Version 0 means "the current version of the adder".
	_, _ = must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeCall, Shape: scalar, Operands: []hlo.InstructionID{x, x},
		Computations: []VersionedHandle{{Handle: add}}}))

	// Adding more instructions to the adder doesn't change what main calls.
	uc := must.M1(tracker.Resolve(add))
	_, _ = must.M2(tracker.Op(add, &OpRequest{Opcode: hlo.OpcodeNegate, Shape: scalar, Operands: []hlo.InstructionID{2}}))
	assert.Equal(t, int64(4), uc.Version())

	module := must.M1(tracker.BuildModule(must.M1(tracker.Versioned(h)), nil))
	result := must.M1(evaluator.New().EvaluateModule(module, literal.Scalar(float32(3))))
	assert.Equal(t, float32(6), literal.Data[float32](result)[0])

	_, _, err := tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeCall, Shape: scalar, Operands: []hlo.InstructionID{x},
		Computations: []VersionedHandle{{Handle: h}}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestConstants(t *testing.T) {
	tracker := NewTracker()
	vec := shapes.Make(shapes.S32, 2)
	h := tracker.NewComputation("main")
	a, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeConstant, Literal: literal.Vector([]int32{1, 2})}))
	p, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: vec, ParameterNumber: 0, ParameterName: "p"}))
	b, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeMultiply, Shape: vec, Operands: []hlo.InstructionID{a, a}}))
	sum, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeAdd, Shape: vec, Operands: []hlo.InstructionID{b, p}}))

	uc := must.M1(tracker.Resolve(h))
	assert.True(t, must.M1(uc.IsConstant(a)))
	assert.True(t, must.M1(uc.IsConstant(b)))
	assert.False(t, must.M1(uc.IsConstant(p)))
	assert.False(t, must.M1(uc.IsConstant(sum)))
	_, err := uc.IsConstant(10)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	c := must.M1(uc.BuildConstant(b, tracker.Build))
	assert.Len(t, c.Instructions(), 2)
	assert.Equal(t, 0, c.NumParameters())
	value := must.M1(evaluator.New().Evaluate(c))
	assert.Equal(t, []int32{1, 4}, literal.Data[int32](value))

	_, err = uc.BuildConstant(sum, tracker.Build)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.ErrorContains(t, err, "not constant")
}

func TestSnapshot(t *testing.T) {
	tracker := NewTracker()
	scalar := shapes.Scalar(shapes.F32)
	vec := shapes.Make(shapes.F32, 4)
	add := newAdder(t, tracker)
	h := tracker.NewComputation("sum")
	x, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: vec, ParameterName: "x"}))
	zero, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeConstant, Literal: literal.Scalar(float32(0))}))
	_, _ = must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeReduce, Shape: scalar, Operands: []hlo.InstructionID{x, zero},
		Dimensions: []int{0}, Computations: []VersionedHandle{{Handle: add}}}))

	snapshot := must.M1(tracker.Snapshot(h))
	require.Len(t, snapshot.Embedded, 1)
	assert.Equal(t, "add", snapshot.Embedded[0].Name)
	assert.Len(t, snapshot.Entry.Requests, 3)

	// Through gob, into a fresh tracker.
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(snapshot))
	var decoded Snapshot
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))

	other := NewTracker()
	_ = other.NewComputation("unrelated")
	loaded := must.M1(other.LoadSnapshot(&decoded))
	uc := must.M1(other.Resolve(loaded))
	assert.Equal(t, "sum", uc.Name())
	assert.Equal(t, int64(3), uc.Version())

	module := must.M1(other.BuildModule(uc.VersionedHandle(), nil))
	result := must.M1(evaluator.New().EvaluateModule(module, literal.Vector([]float32{1, 2, 3, 4})))
	assert.Equal(t, float32(10), literal.Data[float32](result)[0])

	// A snapshot referring to computations it doesn't carry is rejected.
	decoded.Embedded = nil
	_, err := NewTracker().LoadSnapshot(&decoded)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestParameterOrder(t *testing.T) {
	tracker := NewTracker()
	scalar := shapes.Scalar(shapes.S32)
	h := tracker.NewComputation("sub")
	// Parameter 1 first: the computation is only complete once parameter 0 is added.
	y, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterNumber: 1, ParameterName: "y"}))
	_, err := tracker.Build(must.M1(tracker.Versioned(h)))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	x, _ := must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterNumber: 0, ParameterName: "x"}))
	_, _ = must.M2(tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeSubtract, Shape: scalar, Operands: []hlo.InstructionID{x, y}}))
	module := must.M1(tracker.BuildModule(must.M1(tracker.Versioned(h)), nil))
	result := must.M1(evaluator.New().EvaluateModule(module, literal.Scalar(int32(10)), literal.Scalar(int32(3))))
	assert.Equal(t, int32(7), literal.Data[int32](result)[0])

	// Repeated parameter numbers are rejected.
	_, _, err = tracker.Op(h, &OpRequest{Opcode: hlo.OpcodeParameter, Shape: scalar, ParameterNumber: 1, ParameterName: "z"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
