// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// scalarComputation builds a computation of two scalar parameters of the given dtype, combined with op.
func scalarComputation(t *testing.T, name string, op hlo.Opcode, dtype shapes.DType) *hlo.Computation {
	b := hlo.NewBuilder(name)
	scalar := shapes.Scalar(dtype)
	x := b.Parameter(0, scalar, "x")
	y := b.Parameter(1, scalar, "y")
	outputShape := scalar
	if op.IsComparison() {
		outputShape = shapes.Scalar(shapes.Bool)
	}
	b.Binary(op, outputShape, x, y)
	return must.M1(b.Build())
}

// evalUnary evaluates op on x, with the given output shape.
func evalUnary(t *testing.T, op hlo.Opcode, outputShape shapes.Shape, x *literal.Literal) (*literal.Literal, error) {
	b := hlo.NewBuilder("unary")
	p := b.Parameter(0, x.Shape(), "x")
	b.Unary(op, outputShape, p)
	comp, err := b.Build()
	require.NoError(t, err)
	return New().Evaluate(comp, x)
}

// evalBinary evaluates op on x and y, with the given output shape.
func evalBinary(t *testing.T, op hlo.Opcode, outputShape shapes.Shape, x, y *literal.Literal) (*literal.Literal, error) {
	b := hlo.NewBuilder("binary")
	px := b.Parameter(0, x.Shape(), "x")
	py := b.Parameter(1, y.Shape(), "y")
	b.Binary(op, outputShape, px, py)
	comp, err := b.Build()
	require.NoError(t, err)
	return New().Evaluate(comp, x, y)
}

func TestEvaluateSubgraph(t *testing.T) {
	vec := shapes.Make(shapes.F32, 1)
	b := hlo.NewBuilder("main")
	a := b.Constant(literal.Vector([]float32{1}))
	bb := b.Constant(literal.Vector([]float32{2}))
	c := b.Binary(hlo.OpcodeAdd, vec, a, bb)
	b.Binary(hlo.OpcodeAdd, vec, c, bb)
	comp := must.M1(b.Build())

	e := New()
	d := must.M1(e.Evaluate(comp))
	assert.Equal(t, []float32{5}, literal.Data[float32](d))

	cValue := must.M1(e.EvaluateFrom(comp, c))
	assert.Equal(t, []float32{3}, literal.Data[float32](cValue))

	for _, id := range []hlo.InstructionID{-1, hlo.InstructionID(len(comp.Instructions()))} {
		_, err := e.EvaluateFrom(comp, id)
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "id=%d", id)
	}

	// Same evaluator, same computation: same result.
	again := must.M1(e.Evaluate(comp))
	assert.True(t, d.Equal(again))

	// Evaluating a module's entry computation.
	module := must.M1(hlo.NewModule("module", comp, nil))
	fromModule := must.M1(New().EvaluateModule(module))
	assert.True(t, d.Equal(fromModule))
}

func TestArguments(t *testing.T) {
	vec := shapes.Make(shapes.F32, 3)
	b := hlo.NewBuilder("sub")
	x := b.Parameter(0, vec, "x")
	y := b.Parameter(1, vec, "y")
	b.Binary(hlo.OpcodeSubtract, vec, x, y)
	comp := must.M1(b.Build())

	e := New()
	result, err := e.Evaluate(comp, literal.Vector([]float32{5, 7, 9}), literal.Vector([]float32{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, literal.Data[float32](result))

	_, err = e.Evaluate(comp, literal.Vector([]float32{5, 7, 9}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.Evaluate(comp, literal.Vector([]float32{5, 7, 9}), literal.Vector([]float32{1, 2}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// The evaluator can be reused after a failure.
	result, err = e.Evaluate(comp, literal.Vector([]float32{1, 1, 1}), literal.Vector([]float32{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, -1, -2}, literal.Data[float32](result))
}

func TestUnaryOps(t *testing.T) {
	x := literal.Vector([]float32{-1.5, 0, 2.25})
	vec := x.Shape()
	testCases := []struct {
		op   hlo.Opcode
		want []float32
	}{
		{hlo.OpcodeAbs, []float32{1.5, 0, 2.25}},
		{hlo.OpcodeNegate, []float32{1.5, 0, -2.25}},
		{hlo.OpcodeSign, []float32{-1, 0, 1}},
		{hlo.OpcodeFloor, []float32{-2, 0, 2}},
		{hlo.OpcodeCeil, []float32{-1, 0, 3}},
		{hlo.OpcodeCopy, []float32{-1.5, 0, 2.25}},
	}
	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			result, err := evalUnary(t, tc.op, vec, x)
			require.NoError(t, err)
			assert.Equal(t, tc.want, literal.Data[float32](result))
		})
	}

	result, err := evalUnary(t, hlo.OpcodeExp, shapes.Make(shapes.F64, 2), literal.Vector([]float64{0, 1}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, math.E}, literal.Data[float64](result), 1e-12)

	result, err = evalUnary(t, hlo.OpcodeLog, shapes.Make(shapes.F64, 2), literal.Vector([]float64{1, math.E}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1}, literal.Data[float64](result), 1e-12)

	result, err = evalUnary(t, hlo.OpcodeTanh, shapes.Make(shapes.F64, 1), literal.Vector([]float64{0}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, literal.Data[float64](result))

	result, err = evalUnary(t, hlo.OpcodeNot, shapes.Make(shapes.Bool, 2), literal.Vector([]bool{true, false}))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, literal.Data[bool](result))

	result, err = evalUnary(t, hlo.OpcodeNot, shapes.Make(shapes.S32, 2), literal.Vector([]int32{0, 5}))
	require.NoError(t, err)
	assert.Equal(t, []int32{-1, -6}, literal.Data[int32](result))

	result, err = evalUnary(t, hlo.OpcodeConvert, shapes.Make(shapes.F32, 2), literal.Vector([]int32{1, -2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2}, literal.Data[float32](result))

	result, err = evalUnary(t, hlo.OpcodeIsFinite, shapes.Make(shapes.Bool, 3),
		literal.Vector([]float32{1, float32(math.Inf(1)), float32(math.NaN())}))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, literal.Data[bool](result))
}

func TestBinaryOps(t *testing.T) {
	x := literal.Vector([]float32{7.5, -3, 2})
	y := literal.Vector([]float32{2, 4, 3})
	vec := x.Shape()
	testCases := []struct {
		op   hlo.Opcode
		want []float32
	}{
		{hlo.OpcodeAdd, []float32{9.5, 1, 5}},
		{hlo.OpcodeSubtract, []float32{5.5, -7, -1}},
		{hlo.OpcodeMultiply, []float32{15, -12, 6}},
		{hlo.OpcodeDivide, []float32{3.75, -0.75, 2.0 / 3.0}},
		{hlo.OpcodeRemainder, []float32{1.5, -3, 2}},
		{hlo.OpcodeMaximum, []float32{7.5, 4, 3}},
		{hlo.OpcodeMinimum, []float32{2, -3, 2}},
		{hlo.OpcodePower, []float32{56.25, 81, 8}},
	}
	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			result, err := evalBinary(t, tc.op, vec, x, y)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tc.want, literal.Data[float32](result), 1e-5)
		})
	}
}

func TestIntegerOps(t *testing.T) {
	x := literal.Vector([]int32{7, -7, 5, math.MinInt32})
	y := literal.Vector([]int32{2, 2, 0, -1})
	vec := x.Shape()

	result := must.M1(evalBinary(t, hlo.OpcodeDivide, vec, x, y))
	assert.Equal(t, []int32{3, -3, -1, math.MinInt32}, literal.Data[int32](result))

	result = must.M1(evalBinary(t, hlo.OpcodeRemainder, vec, x, y))
	assert.Equal(t, []int32{1, -1, 5, 0}, literal.Data[int32](result))

	result = must.M1(evalBinary(t, hlo.OpcodePower, vec,
		literal.Vector([]int32{3, -1, 2, 1}), literal.Vector([]int32{3, 3, -1, -5})))
	assert.Equal(t, []int32{27, -1, 0, 1}, literal.Data[int32](result))

	result = must.M1(evalBinary(t, hlo.OpcodeAnd, shapes.Make(shapes.UInt8, 2),
		literal.Vector([]uint8{0b1100, 0b1010}), literal.Vector([]uint8{0b1010, 0b1010})))
	assert.Equal(t, []uint8{0b1000, 0b1010}, literal.Data[uint8](result))

	result = must.M1(evalBinary(t, hlo.OpcodeOr, shapes.Make(shapes.Bool, 2),
		literal.Vector([]bool{true, false}), literal.Vector([]bool{false, false})))
	assert.Equal(t, []bool{true, false}, literal.Data[bool](result))
}

func TestCompare(t *testing.T) {
	x := literal.Vector([]float32{1, 2, 3})
	y := literal.Vector([]float32{2, 2, 2})
	boolVec := shapes.Make(shapes.Bool, 3)
	testCases := []struct {
		op   hlo.Opcode
		want []bool
	}{
		{hlo.OpcodeEq, []bool{false, true, false}},
		{hlo.OpcodeNe, []bool{true, false, true}},
		{hlo.OpcodeLt, []bool{true, false, false}},
		{hlo.OpcodeLe, []bool{true, true, false}},
		{hlo.OpcodeGt, []bool{false, false, true}},
		{hlo.OpcodeGe, []bool{false, true, true}},
	}
	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			result, err := evalBinary(t, tc.op, boolVec, x, y)
			require.NoError(t, err)
			assert.Equal(t, tc.want, literal.Data[bool](result))
		})
	}

	result := must.M1(evalBinary(t, hlo.OpcodeEq, shapes.Make(shapes.Bool, 2),
		literal.Vector([]bool{true, false}), literal.Vector([]bool{true, true})))
	assert.Equal(t, []bool{true, false}, literal.Data[bool](result))

	result = must.M1(evalBinary(t, hlo.OpcodeGt, shapes.Make(shapes.Bool, 2),
		literal.Vector([]uint64{math.MaxUint64, 0}), literal.Vector([]uint64{1, 0})))
	assert.Equal(t, []bool{true, false}, literal.Data[bool](result))
}

func TestSelectAndClamp(t *testing.T) {
	vec := shapes.Make(shapes.F32, 3)
	b := hlo.NewBuilder("select")
	pred := b.Parameter(0, shapes.Make(shapes.Bool, 3), "pred")
	onTrue := b.Parameter(1, vec, "on_true")
	onFalse := b.Parameter(2, vec, "on_false")
	b.Ternary(hlo.OpcodeSelect, vec, pred, onTrue, onFalse)
	comp := must.M1(b.Build())
	result := must.M1(New().Evaluate(comp, literal.Vector([]bool{true, false, true}),
		literal.Vector([]float32{1, 2, 3}), literal.Vector([]float32{4, 5, 6})))
	assert.Equal(t, []float32{1, 5, 3}, literal.Data[float32](result))

	b = hlo.NewBuilder("clamp")
	low := b.Constant(literal.Scalar(float32(0)))
	x := b.Parameter(0, vec, "x")
	high := b.Constant(literal.Scalar(float32(1)))
	b.Ternary(hlo.OpcodeClamp, vec, low, x, high)
	comp = must.M1(b.Build())
	result = must.M1(New().Evaluate(comp, literal.Vector([]float32{-1, 0.5, 2})))
	assert.Equal(t, []float32{0, 0.5, 1}, literal.Data[float32](result))
}

func TestShapeOps(t *testing.T) {
	t.Run("Broadcast", func(t *testing.T) {
		b := hlo.NewBuilder("broadcast")
		scalar := b.Constant(literal.Scalar(int32(3)))
		b.Broadcast(shapes.Make(shapes.S32, 2, 2), scalar, nil)
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, []int32{3, 3, 3, 3}, literal.Data[int32](result))

		b = hlo.NewBuilder("broadcast")
		vec := b.Constant(literal.Vector([]int32{1, 2}))
		rows := b.Broadcast(shapes.Make(shapes.S32, 3, 2), vec, []int{1})
		cols := b.Broadcast(shapes.Make(shapes.S32, 2, 3), vec, []int{0})
		comp := must.M1(b.Build())
		result = must.M1(New().EvaluateFrom(comp, rows))
		assert.Equal(t, []int32{1, 2, 1, 2, 1, 2}, literal.Data[int32](result))
		result = must.M1(New().EvaluateFrom(comp, cols))
		assert.Equal(t, []int32{1, 1, 1, 2, 2, 2}, literal.Data[int32](result))
	})

	matrix := literal.Matrix([][]float32{{1, 2, 3}, {4, 5, 6}})
	t.Run("Reshape", func(t *testing.T) {
		result := must.M1(evalUnary(t, hlo.OpcodeReshape, shapes.Make(shapes.F32, 3, 2), matrix))
		assert.Equal(t, []int{3, 2}, result.Shape().Dimensions)
		assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, literal.Data[float32](result))
	})

	t.Run("Transpose", func(t *testing.T) {
		b := hlo.NewBuilder("transpose")
		x := b.Constant(matrix)
		b.Transpose(shapes.Make(shapes.F32, 3, 2), x, []int{1, 0})
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, literal.Data[float32](result))
	})

	t.Run("Reverse", func(t *testing.T) {
		b := hlo.NewBuilder("reverse")
		x := b.Constant(matrix)
		b.Reverse(matrix.Shape(), x, []int{1})
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, []float32{3, 2, 1, 6, 5, 4}, literal.Data[float32](result))
	})

	t.Run("Concatenate", func(t *testing.T) {
		b := hlo.NewBuilder("concatenate")
		x := b.Constant(matrix)
		y := b.Constant(literal.Matrix([][]float32{{7}, {8}}))
		b.Concatenate(shapes.Make(shapes.F32, 2, 4), 1, x, y)
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, []float32{1, 2, 3, 7, 4, 5, 6, 8}, literal.Data[float32](result))
	})

	t.Run("Slice", func(t *testing.T) {
		b := hlo.NewBuilder("slice")
		x := b.Constant(literal.Vector([]int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
		b.Slice(shapes.Make(shapes.S64, 3), x, []int{1}, []int{8}, []int{3})
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, []int64{1, 4, 7}, literal.Data[int64](result))
	})

	t.Run("Tuple", func(t *testing.T) {
		b := hlo.NewBuilder("tuple")
		x := b.Constant(literal.Scalar(float32(1)))
		y := b.Constant(matrix)
		tuple := b.Tuple(x, y)
		b.GetTupleElement(tuple, 1)
		comp := must.M1(b.Build())
		result := must.M1(New().Evaluate(comp))
		assert.True(t, matrix.Equal(result))

		result = must.M1(New().EvaluateFrom(comp, tuple))
		require.True(t, result.IsTuple())
		assert.Equal(t, float32(1), literal.Get[float32](result.TupleElement(0)))
	})
}

func TestDynamicSlice(t *testing.T) {
	operand := literal.Vector([]int32{0, 1, 2, 3, 4})
	build := func(start *literal.Literal) *hlo.Computation {
		b := hlo.NewBuilder("dynamic_slice")
		x := b.Constant(operand)
		startIdx := b.Constant(start)
		b.DynamicSlice(shapes.Make(shapes.S32, 3), x, startIdx, []int{3})
		return must.M1(b.Build())
	}
	result := must.M1(New().Evaluate(build(literal.Vector([]int32{1}))))
	assert.Equal(t, []int32{1, 2, 3}, literal.Data[int32](result))

	// Start indices wrap around the dimension.
	result = must.M1(New().Evaluate(build(literal.Vector([]int32{3}))))
	assert.Equal(t, []int32{3, 4, 0}, literal.Data[int32](result))
	result = must.M1(New().Evaluate(build(literal.Vector([]int64{-1}))))
	assert.Equal(t, []int32{4, 0, 1}, literal.Data[int32](result))
	result = must.M1(New().Evaluate(build(literal.Vector([]uint32{12}))))
	assert.Equal(t, []int32{2, 3, 4}, literal.Data[int32](result))

	b := hlo.NewBuilder("dynamic_update_slice")
	x := b.Constant(literal.Vector([]int32{0, 0, 0, 0, 0}))
	update := b.Constant(literal.Vector([]int32{1, 2}))
	start := b.Constant(literal.Vector([]int32{4}))
	b.DynamicUpdateSlice(shapes.Make(shapes.S32, 5), x, update, start)
	result = must.M1(New().Evaluate(must.M1(b.Build())))
	assert.Equal(t, []int32{2, 0, 0, 0, 1}, literal.Data[int32](result))
}

func TestPad(t *testing.T) {
	vec := literal.Vector([]float32{1, 2, 3})
	pad := func(outputSize int, padding hlo.PadDimension) []float32 {
		b := hlo.NewBuilder("pad")
		x := b.Constant(vec)
		zero := b.Constant(literal.Scalar(float32(0)))
		b.Pad(shapes.Make(shapes.F32, outputSize), x, zero, []hlo.PadDimension{padding})
		return literal.Data[float32](must.M1(New().Evaluate(must.M1(b.Build()))))
	}
	assert.Equal(t, []float32{0, 1, 0, 2, 0, 3, 0, 0}, pad(8, hlo.PadDimension{EdgeLow: 1, EdgeHigh: 2, Interior: 1}))
	assert.Equal(t, []float32{2, 3}, pad(2, hlo.PadDimension{EdgeLow: -1}))
	assert.Equal(t, []float32{0, 1}, pad(2, hlo.PadDimension{EdgeLow: 1, EdgeHigh: -2}))

	// Padding and then slicing back gives the original values.
	b := hlo.NewBuilder("pad_and_slice")
	x := b.Constant(vec)
	zero := b.Constant(literal.Scalar(float32(0)))
	padded := b.Pad(shapes.Make(shapes.F32, 6), x, zero, []hlo.PadDimension{{EdgeLow: 2, EdgeHigh: 1}})
	b.Slice(vec.Shape(), padded, []int{2}, []int{5}, []int{1})
	result := must.M1(New().Evaluate(must.M1(b.Build())))
	assert.True(t, vec.Equal(result))

	// No padding at all on every axis returns the operand.
	matrix := literal.Matrix([][]int32{{1, 2, 3}, {4, 5, 6}})
	b = hlo.NewBuilder("pad_nothing")
	x = b.Constant(matrix)
	b.Pad(matrix.Shape(), x, b.Constant(literal.Scalar(int32(-1))), []hlo.PadDimension{{}, {}})
	result = must.M1(New().Evaluate(must.M1(b.Build())))
	assert.True(t, matrix.Equal(result))
}

func TestReduce(t *testing.T) {
	matrix := literal.Matrix([][]float32{{1, 2, 3}, {4, 5, 6}})
	reduce := func(reducer *hlo.Computation, init float32, outputShape shapes.Shape, axes ...int) *literal.Literal {
		b := hlo.NewBuilder("reduce")
		x := b.Constant(matrix)
		initValue := b.Constant(literal.Scalar(init))
		b.Reduce(outputShape, x, initValue, axes, reducer)
		return must.M1(New().Evaluate(must.M1(b.Build())))
	}
	add := scalarComputation(t, "add", hlo.OpcodeAdd, shapes.F32)
	assert.Equal(t, []float32{6, 15}, literal.Data[float32](reduce(add, 0, shapes.Make(shapes.F32, 2), 1)))
	assert.Equal(t, []float32{15, 17, 19}, literal.Data[float32](reduce(add, 10, shapes.Make(shapes.F32, 3), 0)))
	assert.Equal(t, float32(21), literal.Get[float32](reduce(add, 0, shapes.Scalar(shapes.F32), 0, 1)))

	// Reducing no axes with the identity as initial value returns the operand.
	assert.True(t, matrix.Equal(reduce(add, 0, matrix.Shape())))

	// Reducing a single element over all axes, with the identity as initial value, returns the element.
	for _, dims := range [][]int{{1}, {1, 1}, {1, 1, 1}} {
		single := must.M1(literal.FromFlat([]float32{42}, dims...))
		b := hlo.NewBuilder("reduce_single")
		x := b.Constant(single)
		axes := make([]int, len(dims))
		for axis := range axes {
			axes[axis] = axis
		}
		b.Reduce(shapes.Scalar(shapes.F32), x, b.Constant(literal.Scalar(float32(0))), axes, add)
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, float32(42), literal.Get[float32](result), "dims=%v", dims)
	}

	// The reduction computation is called with (accumulator, value).
	sub := scalarComputation(t, "sub", hlo.OpcodeSubtract, shapes.F32)
	assert.Equal(t, []float32{-6, -15}, literal.Data[float32](reduce(sub, 0, shapes.Make(shapes.F32, 2), 1)))

	maxFn := scalarComputation(t, "max", hlo.OpcodeMaximum, shapes.F32)
	assert.Equal(t, []float32{4, 5, 6}, literal.Data[float32](
		reduce(maxFn, float32(math.Inf(-1)), shapes.Make(shapes.F32, 3), 0)))

	// Reducing an empty axis gives the initial value.
	b := hlo.NewBuilder("reduce_empty")
	x := b.Constant(must.M1(literal.FromFlat([]float32{}, 2, 0)))
	initValue := b.Constant(literal.Scalar(float32(7)))
	b.Reduce(shapes.Make(shapes.F32, 2), x, initValue, []int{1}, add)
	result := must.M1(New().Evaluate(must.M1(b.Build())))
	assert.Equal(t, []float32{7, 7}, literal.Data[float32](result))
}

func TestEmbeddedComputations(t *testing.T) {
	vec := shapes.Make(shapes.F32, 3)
	mul := scalarComputation(t, "mul", hlo.OpcodeMultiply, shapes.F32)

	t.Run("Map", func(t *testing.T) {
		b := hlo.NewBuilder("map")
		x := b.Parameter(0, vec, "x")
		y := b.Parameter(1, vec, "y")
		b.Map(vec, []hlo.InstructionID{x, y}, mul)
		result := must.M1(New().Evaluate(must.M1(b.Build()),
			literal.Vector([]float32{1, 2, 3}), literal.Vector([]float32{4, 5, 6})))
		assert.Equal(t, []float32{4, 10, 18}, literal.Data[float32](result))
	})

	t.Run("Call", func(t *testing.T) {
		b := hlo.NewBuilder("call")
		x := b.Constant(literal.Scalar(float32(3)))
		y := b.Constant(literal.Scalar(float32(4)))
		b.Call(shapes.Scalar(shapes.F32), []hlo.InstructionID{x, y}, mul)
		result := must.M1(New().Evaluate(must.M1(b.Build())))
		assert.Equal(t, float32(12), literal.Get[float32](result))
	})

	t.Run("While", func(t *testing.T) {
		scalar := shapes.Scalar(shapes.S32)
		cb := hlo.NewBuilder("cond")
		state := cb.Parameter(0, scalar, "state")
		limit := cb.Constant(literal.Scalar(int32(10)))
		cb.Binary(hlo.OpcodeLt, shapes.Scalar(shapes.Bool), state, limit)
		cond := must.M1(cb.Build())

		bb := hlo.NewBuilder("body")
		state = bb.Parameter(0, scalar, "state")
		two := bb.Constant(literal.Scalar(int32(2)))
		bb.Binary(hlo.OpcodeMultiply, scalar, state, two)
		body := must.M1(bb.Build())

		b := hlo.NewBuilder("while")
		init := b.Parameter(0, scalar, "init")
		b.While(scalar, init, cond, body)
		comp := must.M1(b.Build())
		result := must.M1(New().Evaluate(comp, literal.Scalar(int32(1))))
		assert.Equal(t, int32(16), literal.Get[int32](result))
		result = must.M1(New().Evaluate(comp, literal.Scalar(int32(20))))
		assert.Equal(t, int32(20), literal.Get[int32](result))
	})
}

func TestDot(t *testing.T) {
	dot := func(outputShape shapes.Shape, lhs, rhs *literal.Literal) (*literal.Literal, error) {
		b := hlo.NewBuilder("dot")
		x := b.Constant(lhs)
		y := b.Constant(rhs)
		b.Dot(outputShape, x, y)
		return New().Evaluate(must.M1(b.Build()))
	}
	result := must.M1(dot(shapes.Scalar(shapes.F32), literal.Vector([]float32{1, 2, 3}), literal.Vector([]float32{4, 5, 6})))
	assert.Equal(t, float32(32), literal.Get[float32](result))

	result = must.M1(dot(shapes.Make(shapes.S64, 2), literal.Matrix([][]int64{{1, 2, 3}, {4, 5, 6}}),
		literal.Vector([]int64{1, 0, -1})))
	assert.Equal(t, []int64{-2, -2}, literal.Data[int64](result))

	result = must.M1(dot(shapes.Make(shapes.F64, 2, 2), literal.Matrix([][]float64{{1, 2}, {3, 4}}),
		literal.Matrix([][]float64{{5, 6}, {7, 8}})))
	assert.Equal(t, []float64{19, 22, 43, 50}, literal.Data[float64](result))

	_, err := dot(shapes.Make(shapes.F32, 2), literal.Matrix([][]float32{{1, 2, 3}, {4, 5, 6}}),
		literal.Vector([]float32{1, 2}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestConvolution(t *testing.T) {
	// Input is [batch=1, features, width], kernel is [output features=1, input features, width].
	conv := func(input, kernel *literal.Literal, outputWidth int, window hlo.WindowDimension) []float32 {
		b := hlo.NewBuilder("conv")
		x := b.Constant(input)
		k := b.Constant(kernel)
		b.Convolution(shapes.Make(shapes.F32, 1, 1, outputWidth), x, k, []hlo.WindowDimension{window},
			hlo.DefaultConvolutionDimensionNumbers(1))
		return literal.Data[float32](must.M1(New().Evaluate(must.M1(b.Build()))))
	}
	input := must.M1(literal.FromFlat([]float32{1, 2, 3, 4}, 1, 1, 4))
	kernel := must.M1(literal.FromFlat([]float32{1, 1}, 1, 1, 2))
	window := hlo.WindowDimension{Size: 2, Stride: 1, WindowDilation: 1, BaseDilation: 1}
	assert.Equal(t, []float32{3, 5, 7}, conv(input, kernel, 3, window))

	padded := window
	padded.PaddingLow, padded.PaddingHigh = 1, 1
	assert.Equal(t, []float32{1, 3, 5, 7, 4}, conv(input, kernel, 5, padded))

	strided := window
	strided.Stride = 2
	assert.Equal(t, []float32{3, 7}, conv(input, kernel, 2, strided))

	windowDilated := window
	windowDilated.WindowDilation = 2
	assert.Equal(t, []float32{4, 6}, conv(input, kernel, 2, windowDilated))

	baseDilated := window
	baseDilated.BaseDilation = 2
	assert.Equal(t, []float32{1, 2, 2, 3, 3, 4}, conv(input, kernel, 6, baseDilated))

	// Two input features are summed.
	input = must.M1(literal.FromFlat([]float32{1, 2, 3, 4}, 1, 2, 2))
	kernel = must.M1(literal.FromFlat([]float32{1, 10}, 1, 2, 1))
	window.Size = 1
	assert.Equal(t, []float32{31, 42}, conv(input, kernel, 2, window))
}

func TestErrors(t *testing.T) {
	t.Run("ImplicitBroadcast", func(t *testing.T) {
		_, err := evalBinary(t, hlo.OpcodeAdd, shapes.Make(shapes.F32, 2, 3),
			literal.New(shapes.Make(shapes.F32, 2, 3)), literal.New(shapes.Make(shapes.F32, 3)))
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.ErrorContains(t, err, "implicit broadcasting")
		assert.ErrorContains(t, err, "(Float32)[2 3]")
		assert.ErrorContains(t, err, "(Float32)[3]")
	})

	t.Run("UnsupportedDTypes", func(t *testing.T) {
		for _, dtype := range []shapes.DType{shapes.F16, shapes.Int16, shapes.UInt16} {
			shape := shapes.Make(dtype, 2)
			_, err := evalBinary(t, hlo.OpcodeAdd, shape, literal.New(shape), literal.New(shape))
			require.Error(t, err, "dtype %s", dtype)
			assert.Equal(t, codes.Unimplemented, status.Code(err), "dtype %s", dtype)
		}
		_, err := evalUnary(t, hlo.OpcodeIsFinite, shapes.Make(shapes.Bool, 2), literal.New(shapes.Make(shapes.F16, 2)))
		require.Error(t, err)
		assert.Equal(t, codes.Unimplemented, status.Code(err))
	})

	t.Run("UnsupportedOpcode", func(t *testing.T) {
		assert.False(t, IsSupported(hlo.OpcodeCustomCall))
		b := hlo.NewBuilder("custom")
		x := b.Constant(literal.Scalar(float32(1)))
		b.CustomCall(shapes.Scalar(shapes.F32), "my_target", x)
		_, err := New().Evaluate(must.M1(b.Build()))
		require.Error(t, err)
		assert.Equal(t, codes.Unimplemented, status.Code(err))
		assert.ErrorContains(t, err, "unhandled HLO ops")
	})

	t.Run("DeclaredShapeMismatch", func(t *testing.T) {
		b := hlo.NewBuilder("mismatch")
		x := b.Constant(literal.Vector([]float32{1, 2}))
		b.Binary(hlo.OpcodeAdd, shapes.Make(shapes.F64, 2), x, x)
		comp := must.M1(b.Build())
		err := exceptions.TryCatch[error](func() { _, _ = New().Evaluate(comp) })
		require.Error(t, err)
		assert.ErrorContains(t, err, "internal error in")
		assert.ErrorContains(t, err, "inferred to be")
	})
}

func TestTryEvaluate(t *testing.T) {
	vec := shapes.Make(shapes.F32, 2)
	b := hlo.NewBuilder("fold")
	x := b.Constant(literal.Vector([]float32{1, 2}))
	y := b.Constant(literal.Vector([]float32{3, 4}))
	p := b.Parameter(0, vec, "p")
	folded := b.Binary(hlo.OpcodeAdd, vec, x, y)
	notFolded := b.Binary(hlo.OpcodeAdd, vec, x, p)
	comp := must.M1(b.BuildWithRoot(notFolded))

	e := New()
	result, ok := e.TryEvaluate(comp.Instruction(folded))
	require.True(t, ok)
	assert.Equal(t, []float32{4, 6}, literal.Data[float32](result))

	_, ok = e.TryEvaluate(comp.Instruction(notFolded))
	assert.False(t, ok)

	result, err := e.EvaluateInstruction(comp.Instruction(notFolded),
		literal.Vector([]float32{1, 1}), literal.Vector([]float32{2, 2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, literal.Data[float32](result))

	_, err = e.EvaluateInstruction(comp.Instruction(p))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
