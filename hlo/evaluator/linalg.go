// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

// execDot contracts the last axis of lhs with the first axis of rhs. Both operands have rank 1 or 2.
func execDot[T number](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	lhs, rhs := operands[0], operands[1]
	lhsRank, rhsRank := lhs.Shape().Rank(), rhs.Shape().Rank()
	contractingSize := lhs.Shape().Dimensions[lhsRank-1]
	lhsIndices := make([]int, lhsRank)
	rhsIndices := make([]int, rhsRank)
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(indices []int) T {
		copy(lhsIndices[:lhsRank-1], indices[:lhsRank-1])
		copy(rhsIndices[1:], indices[lhsRank-1:])
		var sum T
		for k := range contractingSize {
			lhsIndices[lhsRank-1] = k
			rhsIndices[0] = k
			sum += literal.Get[T](lhs, lhsIndices...) * literal.Get[T](rhs, rhsIndices...)
		}
		return sum
	})
	return result, err
}

// execConvolution computes each output position by visiting every kernel spatial position and every input
// feature. Positions that fall in the padding or between the dilated input elements are skipped.
func execConvolution[T number](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	lhs, rhs := operands[0], operands[1]
	dnums := inst.ConvolutionDimensionNumbers()
	window := inst.Window()
	numSpatial := len(dnums.SpatialDimensions)
	lhsDims := lhs.Shape().Dimensions
	inputFeatures := lhsDims[dnums.FeatureDimension]

	windowSizes := make([]int, numSpatial)
	for ii, axis := range dnums.KernelSpatialDimensions {
		windowSizes[ii] = rhs.Shape().Dimensions[axis]
	}
	// Kernel spatial positions: the dtype is irrelevant, it's only used for iteration.
	kernelPositions := shapes.Make(shapes.Int32, windowSizes...)

	lhsIndices := make([]int, lhs.Shape().Rank())
	rhsIndices := make([]int, rhs.Shape().Rank())
	result := literal.New(inst.Shape())
	err := literal.Populate(result, func(outIndices []int) T {
		lhsIndices[dnums.BatchDimension] = outIndices[dnums.BatchDimension]
		rhsIndices[dnums.KernelOutputFeatureDimension] = outIndices[dnums.FeatureDimension]
		var sum T
	nextKernelPosition:
		for kernelIndices := range kernelPositions.Iter() {
			for ii, axis := range dnums.SpatialDimensions {
				w := window[ii]
				undilated := outIndices[axis]*w.Stride - w.PaddingLow + kernelIndices[ii]*w.WindowDilation
				if undilated%w.BaseDilation != 0 {
					continue nextKernelPosition
				}
				lhsIndex := undilated / w.BaseDilation
				if lhsIndex < 0 || lhsIndex >= lhsDims[axis] {
					continue nextKernelPosition
				}
				lhsIndices[axis] = lhsIndex
				rhsIndices[dnums.KernelSpatialDimensions[ii]] = kernelIndices[ii]
			}
			for feature := range inputFeatures {
				lhsIndices[dnums.FeatureDimension] = feature
				rhsIndices[dnums.KernelInputFeatureDimension] = feature
				sum += literal.Get[T](lhs, lhsIndices...) * literal.Get[T](rhs, rhsIndices...)
			}
		}
		return sum
	})
	return result, err
}
