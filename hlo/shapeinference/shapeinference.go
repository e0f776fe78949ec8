// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from each hlo operation and validates its inputs.
//
// The evaluator uses it to verify the declared shape of every instruction, and clients can use it to
// compute the shapes to declare when building computations.
//
// Element-wise operations require operands with the same dimensions: there is no implicit broadcasting,
// and an explicit Broadcast instruction must be used instead.
//
// All errors returned are status.Error with code InvalidArgument, except for opcodes that can't be
// inferred, which return Unimplemented.
package shapeinference

import (
	"slices"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

var (
	// BooleanOrIntegerOperations take booleans or integers as input: logical operations for booleans, bitwise
	// for integers.
	BooleanOrIntegerOperations = types.SetWith(
		hlo.OpcodeAnd,
		hlo.OpcodeOr,
		hlo.OpcodeNot,
	)

	// NumberOperations can take any type of number as input: integers or floats.
	NumberOperations = types.SetWith(
		hlo.OpcodeAdd,
		hlo.OpcodeSubtract,
		hlo.OpcodeMultiply,
		hlo.OpcodeDivide,
		hlo.OpcodePower,
		hlo.OpcodeRemainder,
		hlo.OpcodeMaximum,
		hlo.OpcodeMinimum,

		// Notice Abs, Sign and Negate work for unsigned ints: it's just a trivial (or wrapping) implementation.
		hlo.OpcodeAbs,
		hlo.OpcodeSign,
		hlo.OpcodeNegate,
	)

	// FloatOperations operate only on floats.
	FloatOperations = types.SetWith(
		hlo.OpcodeCeil,
		hlo.OpcodeFloor,
		hlo.OpcodeExp,
		hlo.OpcodeLog,
		hlo.OpcodeTanh,
		hlo.OpcodeIsFinite,
	)

	// OrderedComparisons compare values by their order, and are not defined for booleans.
	OrderedComparisons = types.SetWith(
		hlo.OpcodeGe,
		hlo.OpcodeGt,
		hlo.OpcodeLe,
		hlo.OpcodeLt,
	)
)

// UnaryOp checks the validity of the data type for element-wise unary operations and returns either an error or
// the output shape, which is the same as the operand, except for IsFinite whose output is Bool.
//
// Convert is not handled here, see ConvertOp.
func UnaryOp(opcode hlo.Opcode, operand shapes.Shape) (output shapes.Shape, err error) {
	if !opcode.IsElementwiseUnary() || opcode == hlo.OpcodeConvert {
		err = status.InvalidArgumentf("operation %s is not an element-wise unary operation", opcode)
		return
	}
	if opcode == hlo.OpcodeCopy {
		if err = operand.Validate(); err != nil {
			err = status.InvalidArgumentf("invalid operand shape for %s: %v", opcode, err)
			return
		}
		return operand, nil
	}
	if !operand.IsArray() {
		err = status.InvalidArgumentf("expected array shape for the operand of %s, got %s", opcode, operand)
		return
	}
	if BooleanOrIntegerOperations.Has(opcode) && operand.DType != shapes.Bool && !operand.DType.IsInt() {
		err = status.InvalidArgumentf("%s requires a boolean or integer operand, got %s", opcode, operand)
		return
	}
	if NumberOperations.Has(opcode) && !operand.DType.IsNumber() {
		err = status.InvalidArgumentf("%s requires a number (Int32, Float32, ...) operand, got %s", opcode, operand)
		return
	}
	if FloatOperations.Has(opcode) && !operand.DType.IsFloat() {
		err = status.InvalidArgumentf("%s requires a float (Float32, Float64, ...) operand, got %s", opcode, operand)
		return
	}
	output = operand
	if opcode == hlo.OpcodeIsFinite {
		output = operand.Clone()
		output.DType = shapes.Bool
	}
	return
}

// BinaryOp returns the expected output shape for element-wise binary operations, including comparisons.
//
// Operands must have the same dtype and the same dimensions: implicit broadcasting is not supported.
// Comparisons return Bool.
func BinaryOp(opcode hlo.Opcode, lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if !opcode.IsElementwiseBinary() {
		err = status.InvalidArgumentf("operation %s is not an element-wise binary operation", opcode)
		return
	}
	if !lhs.IsArray() || !rhs.IsArray() {
		err = status.InvalidArgumentf("expected array shapes for the operands of %s, got %s and %s", opcode, lhs, rhs)
		return
	}
	if lhs.DType != rhs.DType {
		err = status.InvalidArgumentf("data types (DType) for %s must match, got %s and %s", opcode, lhs, rhs)
		return
	}
	if !lhs.EqualDimensions(rhs) {
		err = status.InvalidArgumentf("binary op %s with different shapes %s and %s: implicit broadcast is not supported",
			opcode, lhs, rhs)
		return
	}
	dtype := lhs.DType
	if BooleanOrIntegerOperations.Has(opcode) && dtype != shapes.Bool && !dtype.IsInt() {
		err = status.InvalidArgumentf("%s requires boolean or integer operands, got %s", opcode, lhs)
		return
	}
	if NumberOperations.Has(opcode) && !dtype.IsNumber() {
		err = status.InvalidArgumentf("%s requires number (Int32, Float32, ...) operands, got %s", opcode, lhs)
		return
	}
	if OrderedComparisons.Has(opcode) && !dtype.IsNumber() {
		err = status.InvalidArgumentf("comparison %s requires number operands, got %s", opcode, lhs)
		return
	}
	output = lhs.WithoutLayout()
	if opcode.IsComparison() {
		output.DType = shapes.Bool
	}
	return
}

// SelectOp returns the shape of Select(pred, onTrue, onFalse): pred must be Bool, and all three operands must
// have the same dimensions.
func SelectOp(pred, onTrue, onFalse shapes.Shape) (output shapes.Shape, err error) {
	if pred.DType != shapes.Bool {
		err = status.InvalidArgumentf("predicate for select must be a boolean, got %s instead", pred)
		return
	}
	if !onTrue.Equal(onFalse) {
		err = status.InvalidArgumentf("onTrue (%s) and onFalse (%s) values for select must have the same shape",
			onTrue, onFalse)
		return
	}
	if !onTrue.IsArray() {
		err = status.InvalidArgumentf("select values must be arrays, got %s", onTrue)
		return
	}
	if !pred.EqualDimensions(onTrue) {
		err = status.InvalidArgumentf("predicate %s and values %s for select with different dimensions: implicit broadcast is not supported",
			pred, onTrue)
		return
	}
	return onTrue.WithoutLayout(), nil
}

// ClampOp returns the shape of Clamp(minValue, operand, maxValue). The bounds must have the same dtype as the
// operand, and either be scalars or have the operand's dimensions.
func ClampOp(minValue, operand, maxValue shapes.Shape) (output shapes.Shape, err error) {
	if !operand.IsArray() || !operand.DType.IsNumber() {
		err = status.InvalidArgumentf("clamp requires a number operand, got %s", operand)
		return
	}
	for _, bound := range []shapes.Shape{minValue, maxValue} {
		if bound.DType != operand.DType {
			err = status.InvalidArgumentf("clamp bounds must have the same dtype as the operand %s, got %s", operand, bound)
			return
		}
		if !bound.IsScalar() && !bound.EqualDimensions(operand) {
			err = status.InvalidArgumentf("clamp bound %s must be a scalar or have the same dimensions of the operand %s",
				bound, operand)
			return
		}
	}
	return operand.WithoutLayout(), nil
}

// ConvertOp returns the operand shape with the dtype changed.
func ConvertOp(operand shapes.Shape, dtype shapes.DType) (output shapes.Shape, err error) {
	if !operand.IsArray() || !dtype.IsArray() {
		err = status.InvalidArgumentf("convert only works between array types, got %s to %s", operand, dtype)
		return
	}
	output = operand.WithoutLayout()
	output.DType = dtype
	return
}

// BroadcastOp returns the shape of the broadcast of operand to the given dimensions: axis i of the operand
// is mapped to axis dimensions[i] of the output, and must either have the same size or size 1.
func BroadcastOp(operand shapes.Shape, outputDims []int, dimensions []int) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		err = status.InvalidArgumentf("broadcast requires an array operand, got %s", operand)
		return
	}
	if len(dimensions) != operand.Rank() {
		err = status.InvalidArgumentf("broadcast of %s requires %d dimensions, got %v", operand, operand.Rank(), dimensions)
		return
	}
	for ii, axis := range dimensions {
		if axis < 0 || axis >= len(outputDims) {
			err = status.InvalidArgumentf("broadcast of %s to %v: invalid dimensions %v", operand, outputDims, dimensions)
			return
		}
		if ii > 0 && axis <= dimensions[ii-1] {
			err = status.InvalidArgumentf("broadcast dimensions must be strictly increasing, got %v", dimensions)
			return
		}
		if operand.Dimensions[ii] != 1 && operand.Dimensions[ii] != outputDims[axis] {
			err = status.InvalidArgumentf("broadcast of %s to %v: operand axis %d (size %d) can't be broadcast to axis %d (size %d)",
				operand, outputDims, ii, operand.Dimensions[ii], axis, outputDims[axis])
			return
		}
	}
	for _, dim := range outputDims {
		if dim < 0 {
			err = status.InvalidArgumentf("broadcast to invalid dimensions %v", outputDims)
			return
		}
	}
	return shapes.Make(operand.DType, outputDims...), nil
}

// ReshapeOp to the given dimensions: trivial output shape, but this function also checks
// that the sizes are the same.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		err = status.InvalidArgumentf("reshape requires an array operand, got %s", operand)
		return
	}
	if slices.ContainsFunc(dims, func(dim int) bool { return dim < 0 }) {
		err = status.InvalidArgumentf("reshape to invalid dimensions %v", dims)
		return
	}
	output = shapes.Make(operand.DType, dims...)
	if operand.Size() != output.Size() {
		return shapes.Invalid(), status.InvalidArgumentf("cannot reshape %s to dimensions %v, their sizes don't match",
			operand, dims)
	}
	return
}

// TransposeOp all axes of the operand.
// There must be one value in permutation for each axis in the operand.
// The output will have: output.Dimensions[i] = operand.Dimensions[permutation[i]].
func TransposeOp(operand shapes.Shape, permutation []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if !operand.IsArray() || len(permutation) != rank {
		err = status.InvalidArgumentf("transpose requires all axes permutations to be defined, operand has shape %s, but permutation %v was given",
			operand, permutation)
		return
	}
	if err = checkUniqueAxes("transpose", operand, permutation); err != nil {
		return
	}
	output = shapes.Make(operand.DType, make([]int, rank)...)
	for axis, srcAxis := range permutation {
		output.Dimensions[axis] = operand.Dimensions[srcAxis]
	}
	return
}

func checkUniqueAxes(opName string, operand shapes.Shape, axes []int) error {
	rank := operand.Rank()
	seen := make([]bool, rank)
	for _, axis := range axes {
		if axis < 0 || axis >= rank {
			return status.InvalidArgumentf("invalid axis %d given to %s(%s), it must be within the range of its rank",
				axis, opName, operand)
		}
		if seen[axis] {
			return status.InvalidArgumentf("invalid axes given to %s(%s, %v), there cannot be any repeated axis",
				opName, operand, axes)
		}
		seen[axis] = true
	}
	return nil
}

// ReverseOp checks the axes to reverse are valid. The output shape is the operand's.
func ReverseOp(operand shapes.Shape, axes []int) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		err = status.InvalidArgumentf("reverse requires an array operand, got %s", operand)
		return
	}
	if err = checkUniqueAxes("reverse", operand, axes); err != nil {
		return
	}
	return operand.WithoutLayout(), nil
}

// ConcatenateOp calculates the output shape of a concatenation of the inputs along the given axis.
func ConcatenateOp(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), status.InvalidArgumentf("concatenate requires at least one input shape")
	}
	firstShape := inputs[0]
	rank := firstShape.Rank()
	if !firstShape.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("invalid shape %s for first input of concatenate", firstShape)
	}
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), status.InvalidArgumentf("invalid concatenation axis %d for shapes with rank %d", axis, rank)
	}
	output = firstShape.WithoutLayout()
	for ii := 1; ii < len(inputs); ii++ {
		currentShape := inputs[ii]
		if currentShape.DType != firstShape.DType {
			return shapes.Invalid(), status.InvalidArgumentf("mismatched dtypes for concatenate: input #0 has %s, input #%d has %s",
				firstShape.DType, ii, currentShape.DType)
		}
		if currentShape.Rank() != rank {
			return shapes.Invalid(), status.InvalidArgumentf("mismatched ranks for concatenate: input #0 has rank %d, input #%d has rank %d",
				rank, ii, currentShape.Rank())
		}
		for d := range rank {
			if d == axis {
				output.Dimensions[d] += currentShape.Dimensions[d]
			} else if currentShape.Dimensions[d] != output.Dimensions[d] {
				return shapes.Invalid(), status.InvalidArgumentf("mismatched dimensions for concatenate at axis %d: input #0 has %d, input #%d has %d",
					d, output.Dimensions[d], ii, currentShape.Dimensions[d])
			}
		}
	}
	return output, nil
}

// SliceOp calculates the output shape for a static slice: for each axis the elements start, start+stride, ...
// up to (excluding) limit are taken.
func SliceOp(operand shapes.Shape, starts, limits, strides []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if !operand.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("slice requires an array operand, got %s", operand)
	}
	if len(starts) != rank || len(limits) != rank || len(strides) != rank {
		return shapes.Invalid(), status.InvalidArgumentf("slice of %s requires starts, limits and strides for each axis, got %v, %v and %v",
			operand, starts, limits, strides)
	}
	output = shapes.Make(operand.DType, make([]int, rank)...)
	for axis := range rank {
		start, limit, stride := starts[axis], limits[axis], strides[axis]
		dim := operand.Dimensions[axis]
		if start < 0 || start > limit || limit > dim {
			return shapes.Invalid(), status.InvalidArgumentf("slice of %s: invalid range [%d, %d) for axis %d",
				operand, start, limit, axis)
		}
		if stride <= 0 {
			return shapes.Invalid(), status.InvalidArgumentf("slice of %s: stride must be positive, got %d for axis %d",
				operand, stride, axis)
		}
		output.Dimensions[axis] = (limit - start + stride - 1) / stride
	}
	return
}

func checkStartIndices(opName string, operand, startIndices shapes.Shape) error {
	switch startIndices.DType {
	case shapes.S32, shapes.S64, shapes.U32, shapes.U64:
	default:
		return status.InvalidArgumentf("%s start indices must be S32, S64, U32 or U64, got %s", opName, startIndices)
	}
	if startIndices.Rank() != 1 || startIndices.Dimensions[0] != operand.Rank() {
		return status.InvalidArgumentf("%s start indices must be a vector with one index per axis of %s, got %s",
			opName, operand, startIndices)
	}
	return nil
}

// DynamicSliceOp returns the shape of a slice of operand with the given sizes, starting at indices given by the
// rank-1 startIndices.
func DynamicSliceOp(operand, startIndices shapes.Shape, sizes []int) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("dynamic-slice requires an array operand, got %s", operand)
	}
	if err = checkStartIndices("dynamic-slice", operand, startIndices); err != nil {
		return shapes.Invalid(), err
	}
	if len(sizes) != operand.Rank() {
		return shapes.Invalid(), status.InvalidArgumentf("dynamic-slice of %s requires one size per axis, got %v", operand, sizes)
	}
	for axis, size := range sizes {
		if size < 0 || size > operand.Dimensions[axis] {
			return shapes.Invalid(), status.InvalidArgumentf("dynamic-slice of %s: invalid size %d for axis %d",
				operand, size, axis)
		}
	}
	return shapes.Make(operand.DType, sizes...), nil
}

// DynamicUpdateSliceOp checks the update fits into the operand. The output shape is the operand's.
func DynamicUpdateSliceOp(operand, update, startIndices shapes.Shape) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("dynamic-update-slice requires an array operand, got %s", operand)
	}
	if err = checkStartIndices("dynamic-update-slice", operand, startIndices); err != nil {
		return shapes.Invalid(), err
	}
	if update.DType != operand.DType || update.Rank() != operand.Rank() {
		return shapes.Invalid(), status.InvalidArgumentf("dynamic-update-slice update %s must have the same dtype and rank as the operand %s",
			update, operand)
	}
	for axis, dim := range update.Dimensions {
		if dim > operand.Dimensions[axis] {
			return shapes.Invalid(), status.InvalidArgumentf("dynamic-update-slice update %s doesn't fit in the operand %s (axis %d)",
				update, operand, axis)
		}
	}
	return operand.WithoutLayout(), nil
}

// PadOp returns the shape of operand padded with the given configuration, one per axis.
// Negative edge padding crops the operand, and interior padding must be non-negative.
func PadOp(operand, padValue shapes.Shape, padding []hlo.PadDimension) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("pad requires an array operand, got %s", operand)
	}
	if !padValue.IsScalar() || padValue.DType != operand.DType {
		return shapes.Invalid(), status.InvalidArgumentf("pad value must be a scalar of dtype %s, got %s",
			operand.DType, padValue)
	}
	if len(padding) != operand.Rank() {
		return shapes.Invalid(), status.InvalidArgumentf("pad of %s requires a configuration per axis, got %d", operand, len(padding))
	}
	output = shapes.Make(operand.DType, make([]int, operand.Rank())...)
	for axis, pad := range padding {
		if pad.Interior < 0 {
			return shapes.Invalid(), status.InvalidArgumentf("pad of %s: interior padding must be non-negative, got %d for axis %d",
				operand, pad.Interior, axis)
		}
		dim := operand.Dimensions[axis]
		newDim := dim + pad.EdgeLow + pad.EdgeHigh + max(dim-1, 0)*pad.Interior
		if newDim < 0 {
			return shapes.Invalid(), status.InvalidArgumentf("pad of %s: padding %+v for axis %d results in a negative dimension",
				operand, pad, axis)
		}
		output.Dimensions[axis] = newDim
	}
	return
}

func checkScalarComputation(opName string, toApply hlo.ProgramShape, dtypes []shapes.DType) error {
	if len(toApply.Parameters) != len(dtypes) {
		return status.InvalidArgumentf("%s computation must take %d parameters, got %s", opName, len(dtypes), toApply)
	}
	for ii, param := range toApply.Parameters {
		if !param.IsScalar() || param.DType != dtypes[ii] {
			return status.InvalidArgumentf("%s computation parameter #%d must be a scalar %s, got %s",
				opName, ii, dtypes[ii], toApply)
		}
	}
	if !toApply.Result.IsScalar() {
		return status.InvalidArgumentf("%s computation must return a scalar, got %s", opName, toApply)
	}
	return nil
}

// ReduceOp returns the shape of the reduction of the given axes of operand, with the scalar init value and the
// scalar reduction computation toApply: (accumulator, value) -> accumulator.
func ReduceOp(operand, init shapes.Shape, axes []int, toApply hlo.ProgramShape) (output shapes.Shape, err error) {
	if !operand.IsArray() {
		return shapes.Invalid(), status.InvalidArgumentf("reduce requires an array operand, got %s", operand)
	}
	if !init.IsScalar() || init.DType != operand.DType {
		return shapes.Invalid(), status.InvalidArgumentf("reduce init value must be a scalar of dtype %s, got %s",
			operand.DType, init)
	}
	if err = checkUniqueAxes("reduce", operand, axes); err != nil {
		return shapes.Invalid(), err
	}
	if err = checkScalarComputation("reduce", toApply, []shapes.DType{operand.DType, operand.DType}); err != nil {
		return shapes.Invalid(), err
	}
	if toApply.Result.DType != operand.DType {
		return shapes.Invalid(), status.InvalidArgumentf("reduce computation must return a %s, got %s", operand.DType, toApply)
	}
	output = shapes.Make(operand.DType)
	for axis, dim := range operand.Dimensions {
		if !slices.Contains(axes, axis) {
			output.Dimensions = append(output.Dimensions, dim)
		}
	}
	return
}

// MapOp returns the shape of the element-wise application of the scalar computation toApply over the operands,
// which must all have the same dimensions.
func MapOp(operands []shapes.Shape, toApply hlo.ProgramShape) (output shapes.Shape, err error) {
	if len(operands) == 0 {
		return shapes.Invalid(), status.InvalidArgumentf("map requires at least one operand")
	}
	dtypes := make([]shapes.DType, len(operands))
	for ii, operand := range operands {
		if !operand.IsArray() || !operand.EqualDimensions(operands[0]) {
			return shapes.Invalid(), status.InvalidArgumentf("map operands must be arrays with the same dimensions, got %s and %s",
				operands[0], operand)
		}
		dtypes[ii] = operand.DType
	}
	if err = checkScalarComputation("map", toApply, dtypes); err != nil {
		return shapes.Invalid(), err
	}
	return shapes.Make(toApply.Result.DType, operands[0].Dimensions...), nil
}

// CallOp checks the arguments match the parameters of toApply, and returns its result shape.
func CallOp(arguments []shapes.Shape, toApply hlo.ProgramShape) (output shapes.Shape, err error) {
	if len(arguments) != len(toApply.Parameters) {
		return shapes.Invalid(), status.InvalidArgumentf("call with %d arguments to computation %s", len(arguments), toApply)
	}
	for ii, arg := range arguments {
		if !arg.Equal(toApply.Parameters[ii]) {
			return shapes.Invalid(), status.InvalidArgumentf("call argument #%d has shape %s, but computation is %s",
				ii, arg, toApply)
		}
	}
	return toApply.Result.WithoutLayout(), nil
}

// WhileOp checks the condition and body of a loop over a value of shape init: condition must be
// (init) -> Bool scalar, and body (init) -> init. The output shape is init's.
func WhileOp(init shapes.Shape, condition, body hlo.ProgramShape) (output shapes.Shape, err error) {
	if len(condition.Parameters) != 1 || !condition.Parameters[0].Equal(init) ||
		!condition.Result.Equal(shapes.Scalar(shapes.Bool)) {
		return shapes.Invalid(), status.InvalidArgumentf("while condition must be (%s) -> (Bool), got %s", init, condition)
	}
	if len(body.Parameters) != 1 || !body.Parameters[0].Equal(init) || !body.Result.Equal(init) {
		return shapes.Invalid(), status.InvalidArgumentf("while body must be (%s) -> %s, got %s", init, init, body)
	}
	return init.WithoutLayout(), nil
}

// DotOp returns the shape of the dot product of lhs and rhs, of rank 1 or 2 each: the last axis of lhs is
// contracted with the first axis of rhs.
func DotOp(lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if !lhs.IsArray() || !rhs.IsArray() || lhs.DType != rhs.DType {
		return shapes.Invalid(), status.InvalidArgumentf("dot requires arrays of the same dtype, got %s and %s", lhs, rhs)
	}
	if !lhs.DType.IsNumber() {
		return shapes.Invalid(), status.InvalidArgumentf("dot requires number operands, got %s", lhs)
	}
	if lhs.Rank() < 1 || lhs.Rank() > 2 || rhs.Rank() < 1 || rhs.Rank() > 2 {
		return shapes.Invalid(), status.InvalidArgumentf("dot only supports operands of rank 1 or 2, got %s and %s", lhs, rhs)
	}
	if lhs.Dimensions[lhs.Rank()-1] != rhs.Dimensions[0] {
		return shapes.Invalid(), status.InvalidArgumentf("dot contracted dimensions don't match: %s and %s", lhs, rhs)
	}
	output = shapes.Make(lhs.DType)
	output.Dimensions = append(output.Dimensions, lhs.Dimensions[:lhs.Rank()-1]...)
	output.Dimensions = append(output.Dimensions, rhs.Dimensions[1:]...)
	return
}

// ConvolutionOp returns the shape of the convolution of input (lhs) with kernel (rhs).
//
// For each spatial axis, the input is dilated by BaseDilation, padded, and the kernel dilated by WindowDilation;
// the output has one element per stride where the dilated kernel fits in the padded input.
func ConvolutionOp(input, kernel shapes.Shape, window []hlo.WindowDimension, dnums hlo.ConvolutionDimensionNumbers) (
	output shapes.Shape, err error) {
	if !input.IsArray() || !kernel.IsArray() || input.DType != kernel.DType || !input.DType.IsNumber() {
		return shapes.Invalid(), status.InvalidArgumentf("convolution requires number arrays of the same dtype, got %s and %s",
			input, kernel)
	}
	numSpatial := len(dnums.SpatialDimensions)
	rank := input.Rank()
	if rank != numSpatial+2 || kernel.Rank() != rank || len(dnums.KernelSpatialDimensions) != numSpatial ||
		len(window) != numSpatial {
		return shapes.Invalid(), status.InvalidArgumentf(
			"convolution of %s with %s: ranks don't match %d spatial dimensions and window of %d axes",
			input, kernel, numSpatial, len(window))
	}
	inputAxes := append([]int{dnums.BatchDimension, dnums.FeatureDimension}, dnums.SpatialDimensions...)
	if err = checkUniqueAxes("convolution", input, inputAxes); err != nil {
		return shapes.Invalid(), err
	}
	kernelAxes := append([]int{dnums.KernelInputFeatureDimension, dnums.KernelOutputFeatureDimension},
		dnums.KernelSpatialDimensions...)
	if err = checkUniqueAxes("convolution", kernel, kernelAxes); err != nil {
		return shapes.Invalid(), err
	}
	inputFeatures := input.Dimensions[dnums.FeatureDimension]
	if kernelInputFeatures := kernel.Dimensions[dnums.KernelInputFeatureDimension]; inputFeatures != kernelInputFeatures {
		return shapes.Invalid(), status.InvalidArgumentf("convolution input features (%d) of %s doesn't match the kernel input features (%d) of %s",
			inputFeatures, input, kernelInputFeatures, kernel)
	}
	output = shapes.Make(input.DType, make([]int, rank)...)
	output.Dimensions[dnums.BatchDimension] = input.Dimensions[dnums.BatchDimension]
	output.Dimensions[dnums.FeatureDimension] = kernel.Dimensions[dnums.KernelOutputFeatureDimension]
	for ii, w := range window {
		if w.Stride <= 0 || w.WindowDilation <= 0 || w.BaseDilation <= 0 {
			return shapes.Invalid(), status.InvalidArgumentf("convolution window %+v for spatial axis %d must have positive stride and dilations",
				w, ii)
		}
		if w.Size != kernel.Dimensions[dnums.KernelSpatialDimensions[ii]] {
			return shapes.Invalid(), status.InvalidArgumentf("convolution window size %d for spatial axis %d doesn't match kernel %s",
				w.Size, ii, kernel)
		}
		inputDim := input.Dimensions[dnums.SpatialDimensions[ii]]
		paddedDim := w.PaddingLow + w.PaddingHigh
		if inputDim > 0 {
			paddedDim += (inputDim-1)*w.BaseDilation + 1
		}
		dilatedWindow := 0
		if w.Size > 0 {
			dilatedWindow = (w.Size-1)*w.WindowDilation + 1
		}
		outDim := 0
		if paddedDim >= dilatedWindow {
			outDim = (paddedDim-dilatedWindow)/w.Stride + 1
		}
		output.Dimensions[dnums.SpatialDimensions[ii]] = outDim
	}
	return
}

// GetTupleElementOp returns the shape of element index of the tuple.
func GetTupleElementOp(tuple shapes.Shape, index int) (output shapes.Shape, err error) {
	if !tuple.IsTuple() || index < 0 || index >= tuple.TupleSize() {
		return shapes.Invalid(), status.InvalidArgumentf("cannot get element %d of shape %s", index, tuple)
	}
	return tuple.TupleShapes[index].Clone(), nil
}

// TupleOp returns the tuple shape of the elements.
func TupleOp(elements []shapes.Shape) shapes.Shape {
	return shapes.MakeTuple(elements...)
}
