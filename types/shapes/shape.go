/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package shapes defines Shape, DType and Layout, and the associated index tools.
//
// A Shape describes either an array (DType plus Dimensions, optionally with a physical Layout), a tuple
// (a sequence of sub-shapes in TupleShapes) or an opaque value. Shapes are used by the literal values
// (package literal), the instruction graph (package hlo) and the shape inference of every operator.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of an array.
//   - Axis: the index of a dimension. Sometimes used interchangeably with Dimension, but here we try to refer to
//     a dimension index as "axis" (plural axes), and its size as its dimension.
//   - Dimension: the size of an array in one of its axes.
//   - Layout: the physical order of the axes in memory, listed from the most minor (fastest varying) to the
//     most major. The default layout is row-major: `{rank-1, ..., 1, 0}`.
//   - Scalar: a shape with no axes, holding a single value of the associated DType.
//
// Example: the Go slice `[][]int32{{0, 1, 2}, {3, 4, 5}}` converted to a literal has shape `(Int32)[2 3]`.
// We say it has rank 2 (so 2 axes), axis 0 has dimension 2, and axis 1 has dimension 3.
// This shape could be created with `shapes.Make(shapes.Int32, 2, 3)`.
package shapes

import (
	"encoding/gob"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Layout is the physical ordering of the axes of an array shape, from the most minor to the most major.
type Layout struct {
	MinorToMajor []int
}

// DefaultLayout returns the row-major layout for the given rank: the last axis is the most minor.
func DefaultLayout(rank int) Layout {
	l := Layout{MinorToMajor: make([]int, rank)}
	for ii := range rank {
		l.MinorToMajor[ii] = rank - 1 - ii
	}
	return l
}

// MakeLayout returns a Layout with the given minor-to-major order.
func MakeLayout(minorToMajor ...int) Layout {
	return Layout{MinorToMajor: slices.Clone(minorToMajor)}
}

// Equal returns whether both layouts have the same order.
func (l Layout) Equal(l2 Layout) bool { return slices.Equal(l.MinorToMajor, l2.MinorToMajor) }

// String implements fmt.Stringer, in the `{1,0}` format.
func (l Layout) String() string {
	parts := make([]string, len(l.MinorToMajor))
	for ii, axis := range l.MinorToMajor {
		parts[ii] = fmt.Sprint(axis)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Shape represents the shape of a value: an array, a tuple or an opaque value.
//
// Use Make, MakeTuple or MakeOpaque to create a new shape. The zero value is an invalid shape.
type Shape struct {
	DType       DType
	Dimensions  []int
	TupleShapes []Shape // Shapes of the elements, if this is a tuple.

	// Layout is optional: nil means no layout was assigned. Code that needs a physical order uses
	// the default (row-major) layout in that case.
	Layout *Layout
}

// Make returns an array Shape with the given dtype and dimensions, and no layout.
// See MakeTuple for tuple shapes.
//
// It panics for a negative dimension.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given dtype.
func Scalar(dtype DType) Shape {
	return Shape{DType: dtype}
}

// MakeTuple returns a shape representing a tuple of elements with the given shapes.
func MakeTuple(elements ...Shape) Shape {
	s := Shape{DType: Tuple, TupleShapes: make([]Shape, 0, len(elements))}
	for _, element := range elements {
		s.TupleShapes = append(s.TupleShapes, element.Clone())
	}
	return s
}

// MakeOpaque returns the shape of an opaque value.
func MakeOpaque() Shape { return Shape{DType: OpaqueType} }

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType.IsValid() }

// Rank of the shape, that is, the number of dimensions. It is 0 for tuples and opaque values.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar array, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.IsArray() && s.Rank() == 0 }

// IsArray returns whether the shape is an array (not a tuple nor opaque).
func (s Shape) IsArray() bool { return s.DType.IsArray() }

// IsTuple returns whether the shape represents a tuple.
func (s Shape) IsTuple() bool { return s.DType == Tuple }

// IsOpaque returns whether the shape represents an opaque value.
func (s Shape) IsOpaque() bool { return s.DType == OpaqueType }

// IsNestedTuple returns whether the shape is a tuple with at least one tuple element.
func (s Shape) IsNestedTuple() bool {
	if !s.IsTuple() {
		return false
	}
	for _, element := range s.TupleShapes {
		if element.IsTuple() {
			return true
		}
	}
	return false
}

// TupleSize returns the number of elements in the tuple, if it is a tuple.
func (s Shape) TupleSize() int {
	return len(s.TupleShapes)
}

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a shallow copy of itself.
func (s Shape) Shape() Shape { return s }

// String implements stringer, pretty-prints the shape.
// The layout is only printed if it was set and is not the default one.
func (s Shape) String() string {
	if s.IsTuple() {
		parts := make([]string, 0, s.TupleSize())
		for _, tuple := range s.TupleShapes {
			parts = append(parts, tuple.String())
		}
		return fmt.Sprintf("Tuple<%s>", strings.Join(parts, ", "))
	}
	if s.IsOpaque() {
		return "(Opaque)"
	}
	var layout string
	if s.Layout != nil && !s.Layout.Equal(DefaultLayout(s.Rank())) {
		layout = s.Layout.String()
	}
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)%s", s.DType, layout)
	}
	return fmt.Sprintf("(%s)%v%s", s.DType, s.Dimensions, layout)
}

// Size returns the number of elements of DType are needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
// For tuples it is the sum of the memory of its elements.
func (s Shape) Memory() uintptr {
	if s.IsTuple() {
		var total uintptr
		for _, element := range s.TupleShapes {
			total += element.Memory()
		}
		return total
	}
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared, recursively for tuples.
// Layouts are ignored, see EqualWithLayout.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	if s.IsTuple() {
		if s.TupleSize() != s2.TupleSize() {
			return false
		}
		for ii, element := range s.TupleShapes {
			if !element.Equal(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualWithLayout compares two shapes for equality, including the layouts of arrays.
// A missing layout is considered equal to the default layout.
func (s Shape) EqualWithLayout(s2 Shape) bool {
	if !s.Equal(s2) {
		return false
	}
	if s.IsTuple() {
		for ii, element := range s.TupleShapes {
			if !element.EqualWithLayout(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.MinorToMajor(), s2.MinorToMajor())
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.IsTuple() {
		if !s2.IsTuple() {
			return false
		}
		if s.TupleSize() != s2.TupleSize() {
			return false
		}
		for ii, element := range s.TupleShapes {
			if !element.EqualDimensions(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	if s.Layout != nil {
		layout := MakeLayout(s.Layout.MinorToMajor...)
		s2.Layout = &layout
	}
	if s.TupleSize() > 0 {
		s2.TupleShapes = make([]Shape, 0, len(s.TupleShapes))
		for _, subShape := range s.TupleShapes {
			s2.TupleShapes = append(s2.TupleShapes, subShape.Clone())
		}
	}
	return
}

// WithLayout returns a copy of the array shape with the given layout.
func (s Shape) WithLayout(layout Layout) Shape {
	s2 := s.Clone()
	s2.Layout = &Layout{MinorToMajor: slices.Clone(layout.MinorToMajor)}
	return s2
}

// WithoutLayout returns a copy of the shape with all layouts removed, recursively.
func (s Shape) WithoutLayout() Shape {
	s2 := s.Clone()
	s2.Layout = nil
	for ii := range s2.TupleShapes {
		s2.TupleShapes[ii] = s2.TupleShapes[ii].WithoutLayout()
	}
	return s2
}

// HasLayout returns whether the array has a layout set, or for tuples, whether all elements have layouts.
func (s Shape) HasLayout() bool {
	if s.IsTuple() {
		for _, element := range s.TupleShapes {
			if !element.HasLayout() {
				return false
			}
		}
		return true
	}
	if s.IsOpaque() {
		return true
	}
	return s.Layout != nil
}

// MinorToMajor returns the layout order of the array, or the default one if no layout is set.
func (s Shape) MinorToMajor() []int {
	if s.Layout != nil {
		return s.Layout.MinorToMajor
	}
	return DefaultLayout(s.Rank()).MinorToMajor
}

// Validate checks the shape is well-formed: valid dtype, non-negative dimensions, valid layouts and, for tuples,
// valid elements.
func (s Shape) Validate() error {
	if !s.Ok() {
		return errors.Errorf("shape has invalid element type %s", s.DType)
	}
	if s.IsTuple() {
		if s.Rank() != 0 {
			return errors.Errorf("tuple shape must not have dimensions, got %v", s.Dimensions)
		}
		for ii, element := range s.TupleShapes {
			if err := element.Validate(); err != nil {
				return errors.WithMessagef(err, "tuple element #%d", ii)
			}
		}
		return nil
	}
	if len(s.TupleShapes) > 0 {
		return errors.Errorf("non-tuple shape %s has tuple elements", s)
	}
	if s.IsOpaque() {
		if s.Rank() != 0 {
			return errors.Errorf("opaque shape must not have dimensions, got %v", s.Dimensions)
		}
		return nil
	}
	for axis, dim := range s.Dimensions {
		if dim < 0 {
			return errors.Errorf("shape %s has negative dimension %d at axis %d", s, dim, axis)
		}
	}
	if s.Layout != nil {
		return ValidateLayout(*s.Layout, s)
	}
	return nil
}

// ValidateLayout checks that layout is a permutation of the axes of the array shape.
func ValidateLayout(layout Layout, s Shape) error {
	if !s.IsArray() {
		return errors.Errorf("layout %s given for non-array shape %s", layout, s)
	}
	if len(layout.MinorToMajor) != s.Rank() {
		return errors.Errorf("layout %s has %d axes, but shape %s has rank %d",
			layout, len(layout.MinorToMajor), s, s.Rank())
	}
	seen := make([]bool, s.Rank())
	for _, axis := range layout.MinorToMajor {
		if axis < 0 || axis >= s.Rank() || seen[axis] {
			return errors.Errorf("layout %s is not a permutation of the axes of shape %s", layout, s)
		}
		seen[axis] = true
	}
	return nil
}

// GobSerialize shape in binary format.
func (s Shape) GobSerialize(encoder *gob.Encoder) (err error) {
	enc := func(e any) {
		if err != nil {
			return
		}
		err = encoder.Encode(e)
		if err != nil {
			err = errors.Wrapf(err, "failed to serialize Shape %s", s)
		}
	}
	enc(s.DType)
	enc(s.Dimensions)
	enc(s.Layout != nil)
	if s.Layout != nil {
		enc(s.Layout.MinorToMajor)
	}
	enc(len(s.TupleShapes))
	if err != nil {
		return
	}
	for _, subShape := range s.TupleShapes {
		err = subShape.GobSerialize(encoder)
		if err != nil {
			return
		}
	}
	return
}

// GobDeserialize a Shape. Returns new Shape or an error.
func GobDeserialize(decoder *gob.Decoder) (s Shape, err error) {
	dec := func(data any) {
		if err != nil {
			return
		}
		err = decoder.Decode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to deserialize Shape")
		}
	}
	dec(&s.DType)
	dec(&s.Dimensions)
	var hasLayout bool
	dec(&hasLayout)
	if hasLayout {
		s.Layout = &Layout{}
		dec(&s.Layout.MinorToMajor)
	}
	var numTuples int
	dec(&numTuples)
	if err != nil {
		return
	}
	if numTuples > 0 {
		s.TupleShapes = make([]Shape, numTuples)
	}
	for ii := range s.TupleShapes {
		s.TupleShapes[ii], err = GobDeserialize(decoder)
		if err != nil {
			return
		}
	}
	return
}
