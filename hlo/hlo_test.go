// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

func buildAddComputation(t *testing.T, name string) *Computation {
	b := NewBuilder(name)
	scalar := shapes.Scalar(shapes.F32)
	x := b.Parameter(0, scalar, "x")
	y := b.Parameter(1, scalar, "y")
	b.Binary(OpcodeAdd, scalar, x, y)
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestBuilder(t *testing.T) {
	b := NewBuilder("main")
	vec := shapes.Make(shapes.F32, 1)
	a := b.Constant(literal.Vector([]float32{1}))
	bb := b.Constant(literal.Vector([]float32{2}))
	c := b.Binary(OpcodeAdd, vec, a, bb)
	d := b.Binary(OpcodeAdd, vec, c, bb)
	comp, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, d, comp.Root().ID())
	assert.Equal(t, "add.2", comp.Instruction(c).Name())
	assert.Equal(t, 0, comp.NumParameters())

	order := comp.PostOrder()
	require.Len(t, order, 4)
	assert.Equal(t, d, order[3].ID())
	ids := make([]InstructionID, 0, len(order))
	for _, inst := range order {
		ids = append(ids, inst.ID())
	}
	assert.Equal(t, []InstructionID{a, bb, c, d}, ids)

	order = comp.PostOrderFrom(c)
	require.Len(t, order, 3)
	assert.Equal(t, c, order[2].ID())
	assert.Same(t, comp, comp.Instruction(c).Parent())
	assert.Equal(t, a, comp.Instruction(c).Operand(0).ID())
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder("empty").Build()
	require.ErrorContains(t, err, "empty")

	b := NewBuilder("bad_operand")
	b.Unary(OpcodeNegate, shapes.Scalar(shapes.F32), 7)
	_, err = b.Build()
	require.ErrorContains(t, err, "unknown instruction 7")

	b = NewBuilder("gap")
	b.Parameter(0, shapes.Scalar(shapes.F32), "")
	b.Parameter(2, shapes.Scalar(shapes.F32), "")
	_, err = b.Build()
	require.ErrorContains(t, err, "contiguous")

	b = NewBuilder("repeated")
	b.Parameter(0, shapes.Scalar(shapes.F32), "")
	b.Parameter(0, shapes.Scalar(shapes.F32), "")
	_, err = b.Build()
	require.ErrorContains(t, err, "already used")

	b = NewBuilder("gte")
	x := b.Parameter(0, shapes.Scalar(shapes.F32), "")
	b.GetTupleElement(x, 0)
	_, err = b.Build()
	require.Error(t, err)
}

func TestProgramShape(t *testing.T) {
	add := buildAddComputation(t, "add")
	ps := add.ProgramShape()
	assert.Equal(t, "(x: (Float32), y: (Float32)) -> (Float32)", ps.String())

	b := NewBuilder("main")
	tuple := b.Tuple(
		b.Parameter(0, shapes.Make(shapes.S32, 2), ""),
		b.Constant(literal.Scalar(float64(1))))
	b.GetTupleElement(tuple, 1)
	comp := must.M1(b.Build())
	assert.True(t, comp.Root().Shape().Equal(shapes.Scalar(shapes.F64)))
	assert.Equal(t, 2, comp.Instruction(tuple).Shape().TupleSize())
}

func TestModule(t *testing.T) {
	add := buildAddComputation(t, "add")
	b := NewBuilder("main")
	x := b.Parameter(0, shapes.Make(shapes.F32, 3), "x")
	zero := b.Constant(literal.Scalar(float32(0)))
	b.Reduce(shapes.Scalar(shapes.F32), x, zero, []int{0}, add)
	main := must.M1(b.Build())

	m, err := NewModule("sum", main, nil)
	require.NoError(t, err)
	require.Len(t, m.Computations(), 2)
	assert.Same(t, add, m.Computations()[0])
	assert.Same(t, main, m.EntryComputation())
	assert.Equal(t, 1, m.Config().ReplicaCount)
	assert.Contains(t, m.String(), "ENTRY %main")

	_, err = NewModule("bad", main, &ModuleConfig{})
	require.Error(t, err)

	stats := CostAnalysis(main)
	assert.Equal(t, int64(3), stats.FlopCount)
	assert.Equal(t, int64(0), stats.TranscendentalCount)
}

func TestModuleConfigKey(t *testing.T) {
	ps := ProgramShape{
		Parameters: []shapes.Shape{shapes.Make(shapes.F32, 2, 3)},
		Result:     shapes.Make(shapes.F32, 3),
	}
	c1 := NewModuleConfig(ps)
	c2 := c1.Clone()
	assert.Equal(t, c1.Key(), c2.Key())
	assert.True(t, c1.Equal(c2))

	c2.Seed = 7
	assert.NotEqual(t, c1.Key(), c2.Key())

	c3 := c1.Clone()
	c3.EntryComputationLayout.ResultShape = c3.EntryComputationLayout.ResultShape.WithLayout(shapes.DefaultLayout(1))
	assert.NotEqual(t, c1.Key(), c3.Key())
	assert.False(t, c1.EntryComputationLayout.ResultLayoutIsSet())
	assert.True(t, c3.EntryComputationLayout.ResultLayoutIsSet())

	c4 := c1.Clone()
	c4.DebugOptions.FastMath = true
	assert.False(t, c1.Equal(c4))

	c1.EntryComputationLayout.SetToDefaultLayout()
	assert.True(t, c1.EntryComputationLayout.ParameterShapes[0].HasLayout())
	assert.True(t, c1.EntryComputationLayout.ResultLayoutIsSet())
}

func TestOpcode(t *testing.T) {
	assert.Equal(t, "add", OpcodeAdd.String())
	assert.Equal(t, "get-tuple-element", OpcodeGetTupleElement.String())
	assert.True(t, OpcodeNegate.IsElementwiseUnary())
	assert.True(t, OpcodeLt.IsComparison())
	assert.False(t, OpcodeAdd.IsComparison())
	assert.True(t, OpcodeSelect.IsElementwise())
	assert.False(t, OpcodeDot.IsElementwise())
}
