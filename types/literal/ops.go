// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package literal

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/hlo/types/shapes"
)

// Convert returns a new array literal with the elements converted to dtype, keeping the layout.
// Conversions follow C semantics: floats are truncated towards zero when converted to integers,
// and any non-zero value converts to true.
func (l *Literal) Convert(dtype shapes.DType) (*Literal, error) {
	if !l.shape.IsArray() {
		return nil, errors.Errorf("cannot convert non-array literal of shape %s", l.shape)
	}
	if !dtype.IsArray() {
		return nil, errors.Errorf("cannot convert literal of shape %s to %s", l.shape, dtype)
	}
	result := &Literal{shape: l.shape.Clone()}
	result.shape.DType = dtype
	size := l.shape.Size()
	switch dtype {
	case shapes.Bool:
		result.data = convertStorage[bool](l.data, size)
	case shapes.Int8:
		result.data = convertStorage[int8](l.data, size)
	case shapes.Int16:
		result.data = convertStorage[int16](l.data, size)
	case shapes.Int32:
		result.data = convertStorage[int32](l.data, size)
	case shapes.Int64:
		result.data = convertStorage[int64](l.data, size)
	case shapes.UInt8:
		result.data = convertStorage[uint8](l.data, size)
	case shapes.UInt16:
		result.data = convertStorage[uint16](l.data, size)
	case shapes.UInt32:
		result.data = convertStorage[uint32](l.data, size)
	case shapes.UInt64:
		result.data = convertStorage[uint64](l.data, size)
	case shapes.Float16:
		result.data = convertStorage[float16.Float16](l.data, size)
	case shapes.Float32:
		result.data = convertStorage[float32](l.data, size)
	case shapes.Float64:
		result.data = convertStorage[float64](l.data, size)
	}
	return result, nil
}

// Relayout returns a copy of the array literal stored with the given layout.
func (l *Literal) Relayout(layout shapes.Layout) (*Literal, error) {
	if err := shapes.ValidateLayout(layout, l.shape); err != nil {
		return nil, err
	}
	result := New(l.shape.WithLayout(layout))
	for indices := range l.shape.Iter() {
		setElementAt(result.data, result.shape.LinearIndex(indices), elementAt(l.data, l.shape.LinearIndex(indices)))
	}
	return result, nil
}

// RelayoutShape returns a copy of the literal with the layouts of shapeWithLayout, recursively for tuples.
// Elements of shapeWithLayout without a layout keep their current storage.
func (l *Literal) RelayoutShape(shapeWithLayout shapes.Shape) (*Literal, error) {
	if !l.shape.Equal(shapeWithLayout) {
		return nil, errors.Errorf("cannot relayout literal of shape %s to shape %s", l.shape, shapeWithLayout)
	}
	if l.IsTuple() {
		elements := make([]*Literal, len(l.elements))
		for ii, element := range l.elements {
			var err error
			elements[ii], err = element.RelayoutShape(shapeWithLayout.TupleShapes[ii])
			if err != nil {
				return nil, err
			}
		}
		return NewTuple(elements...), nil
	}
	if !l.shape.IsArray() || shapeWithLayout.Layout == nil {
		return l.Clone(), nil
	}
	return l.Relayout(*shapeWithLayout.Layout)
}

// rowMajor returns the literal itself if it's stored in row-major order, or a row-major copy otherwise.
func (l *Literal) rowMajor() *Literal {
	if slices.Equal(l.shape.MinorToMajor(), shapes.DefaultLayout(l.shape.Rank()).MinorToMajor) {
		return l
	}
	result, err := l.Relayout(shapes.DefaultLayout(l.shape.Rank()))
	if err != nil {
		panic(err) // Layout of an array literal is always valid.
	}
	return result
}

// Reshape returns a row-major copy of the array literal with the new dimensions, keeping the elements
// in row-major order. The number of elements must not change.
func (l *Literal) Reshape(dimensions ...int) (*Literal, error) {
	if !l.shape.IsArray() {
		return nil, errors.Errorf("cannot reshape non-array literal of shape %s", l.shape)
	}
	newShape := shapes.Make(l.shape.DType, dimensions...)
	if newShape.Size() != l.shape.Size() {
		return nil, errors.Errorf("cannot reshape literal of shape %s to dimensions %v: size mismatch", l.shape, dimensions)
	}
	source := l.rowMajor()
	return &Literal{shape: newShape, data: cloneStorage(source.data)}, nil
}

// Transpose returns a row-major array literal with the axes permuted: axis i of the result is axis
// permutation[i] of the operand.
func (l *Literal) Transpose(permutation ...int) (*Literal, error) {
	if !l.shape.IsArray() {
		return nil, errors.Errorf("cannot transpose non-array literal of shape %s", l.shape)
	}
	rank := l.shape.Rank()
	if len(permutation) != rank {
		return nil, errors.Errorf("transpose permutation %v has wrong length for shape %s", permutation, l.shape)
	}
	dims := make([]int, rank)
	seen := make([]bool, rank)
	for ii, axis := range permutation {
		if axis < 0 || axis >= rank || seen[axis] {
			return nil, errors.Errorf("transpose permutation %v is not a permutation of the axes of %s", permutation, l.shape)
		}
		seen[axis] = true
		dims[ii] = l.shape.Dimensions[axis]
	}
	result := New(shapes.Make(l.shape.DType, dims...))
	operandIndices := make([]int, rank)
	for indices := range result.shape.Iter() {
		for ii, axis := range permutation {
			operandIndices[axis] = indices[ii]
		}
		setElementAt(result.data, result.shape.LinearIndex(indices), elementAt(l.data, l.shape.LinearIndex(operandIndices)))
	}
	return result, nil
}

// CopySliceFrom copies the sub-region of src starting at srcBase, with copySize elements on each axis, into
// the sub-region of l starting at destBase. Both literals must be arrays of the same DType and rank.
func (l *Literal) CopySliceFrom(src *Literal, srcBase, destBase, copySize []int) error {
	if !l.shape.IsArray() || !src.shape.IsArray() {
		return errors.Errorf("CopySliceFrom requires array literals, got %s and %s", l.shape, src.shape)
	}
	if l.shape.DType != src.shape.DType {
		return errors.Errorf("CopySliceFrom: source dtype %s differs from destination dtype %s", src.shape.DType, l.shape.DType)
	}
	rank := l.shape.Rank()
	if src.shape.Rank() != rank || len(srcBase) != rank || len(destBase) != rank || len(copySize) != rank {
		return errors.Errorf("CopySliceFrom: rank mismatch between source %s, destination %s and base/size %v/%v/%v",
			src.shape, l.shape, srcBase, destBase, copySize)
	}
	for axis := range rank {
		if srcBase[axis] < 0 || srcBase[axis]+copySize[axis] > src.shape.Dimensions[axis] ||
			destBase[axis] < 0 || destBase[axis]+copySize[axis] > l.shape.Dimensions[axis] {
			return errors.Errorf("CopySliceFrom: region of size %v out of bounds (source %s at %v, destination %s at %v)",
				copySize, src.shape, srcBase, l.shape, destBase)
		}
	}
	if rank == 0 {
		setElementAt(l.data, 0, elementAt(src.data, 0))
		return nil
	}
	srcIndices := make([]int, rank)
	destIndices := make([]int, rank)
	for offsets := range shapes.Make(l.shape.DType, copySize...).Iter() {
		for axis := range rank {
			srcIndices[axis] = srcBase[axis] + offsets[axis]
			destIndices[axis] = destBase[axis] + offsets[axis]
		}
		setElementAt(l.data, l.shape.LinearIndex(destIndices), elementAt(src.data, src.shape.LinearIndex(srcIndices)))
	}
	return nil
}

// SetFrom copies the element at the given multi-dimensional srcIndices of src into l at destIndices.
// Both must be arrays of the same DType; bounds are not checked.
func (l *Literal) SetFrom(destIndices []int, src *Literal, srcIndices []int) {
	setElementAt(l.data, l.shape.LinearIndex(destIndices), elementAt(src.data, src.shape.LinearIndex(srcIndices)))
}
