// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package literal implements Literal, a concrete value with a shapes.Shape: a typed, shaped
// in-memory array, or a tuple of literals.
//
// Array elements are stored in a flat Go slice of the corresponding type (see Element), in the
// physical order given by the shape's layout (row-major if the shape has no layout).
// Element access is done with multi-dimensional (logical) indices, so the layout is only
// relevant when accessing the flat storage directly with Data.
package literal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/hlo/types/shapes"
)

// Element enumerates the Go types used to store the elements of array literals.
// Float16 values use github.com/x448/float16.
type Element interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float16.Float16 | float32 | float64
}

// DTypeOf returns the shapes.DType corresponding to the Go type T.
func DTypeOf[T Element]() shapes.DType {
	var t T
	switch any(t).(type) {
	case bool:
		return shapes.Bool
	case int8:
		return shapes.Int8
	case int16:
		return shapes.Int16
	case int32:
		return shapes.Int32
	case int64:
		return shapes.Int64
	case uint8:
		return shapes.UInt8
	case uint16:
		return shapes.UInt16
	case uint32:
		return shapes.UInt32
	case uint64:
		return shapes.UInt64
	case float16.Float16:
		return shapes.Float16
	case float32:
		return shapes.Float32
	case float64:
		return shapes.Float64
	}
	return shapes.InvalidDType
}

// Literal is a concrete value: an array with flat storage, or a tuple of child literals.
//
// A Literal handed to a consumer that doesn't own it must be treated as immutable.
type Literal struct {
	shape    shapes.Shape
	data     any
	elements []*Literal
}

// New returns a zero-filled literal (recursively for tuples) with the given shape.
// Opaque shapes have no storage.
// It panics if the shape is not valid.
func New(shape shapes.Shape) *Literal {
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("literal.New(%s): %v", shape, err)
	}
	l := &Literal{shape: shape.Clone()}
	switch {
	case shape.IsTuple():
		l.elements = make([]*Literal, len(shape.TupleShapes))
		for ii, elementShape := range shape.TupleShapes {
			l.elements[ii] = New(elementShape)
		}
	case shape.IsArray():
		l.data = makeStorage(shape.DType, shape.Size())
	}
	return l
}

func makeStorage(dtype shapes.DType, size int) any {
	switch dtype {
	case shapes.Bool:
		return make([]bool, size)
	case shapes.Int8:
		return make([]int8, size)
	case shapes.Int16:
		return make([]int16, size)
	case shapes.Int32:
		return make([]int32, size)
	case shapes.Int64:
		return make([]int64, size)
	case shapes.UInt8:
		return make([]uint8, size)
	case shapes.UInt16:
		return make([]uint16, size)
	case shapes.UInt32:
		return make([]uint32, size)
	case shapes.UInt64:
		return make([]uint64, size)
	case shapes.Float16:
		return make([]float16.Float16, size)
	case shapes.Float32:
		return make([]float32, size)
	case shapes.Float64:
		return make([]float64, size)
	}
	exceptions.Panicf("no storage for dtype %s", dtype)
	return nil
}

// Scalar returns a scalar literal with the given value.
func Scalar[T Element](value T) *Literal {
	return &Literal{shape: shapes.Scalar(DTypeOf[T]()), data: []T{value}}
}

// Vector returns a rank-1 literal with a copy of the given values.
func Vector[T Element](values []T) *Literal {
	return &Literal{shape: shapes.Make(DTypeOf[T](), len(values)), data: slices.Clone(values)}
}

// Matrix returns a rank-2 literal with a copy of the given rows. All rows must have the same length.
func Matrix[T Element](rows [][]T) *Literal {
	numCols := 0
	if len(rows) > 0 {
		numCols = len(rows[0])
	}
	flat := make([]T, 0, len(rows)*numCols)
	for ii, row := range rows {
		if len(row) != numCols {
			exceptions.Panicf("literal.Matrix: row %d has %d elements, expected %d", ii, len(row), numCols)
		}
		flat = append(flat, row...)
	}
	return &Literal{shape: shapes.Make(DTypeOf[T](), len(rows), numCols), data: flat}
}

// FromFlat returns a literal with the given dimensions, with the values given in row-major order.
func FromFlat[T Element](flat []T, dimensions ...int) (*Literal, error) {
	shape := shapes.Make(DTypeOf[T](), dimensions...)
	if shape.Size() != len(flat) {
		return nil, errors.Errorf("literal.FromFlat: %d values given for shape %s (size %d)", len(flat), shape, shape.Size())
	}
	return &Literal{shape: shape, data: slices.Clone(flat)}, nil
}

// NewTuple returns a tuple literal owning the given elements.
func NewTuple(elements ...*Literal) *Literal {
	elementShapes := make([]shapes.Shape, len(elements))
	for ii, element := range elements {
		elementShapes[ii] = element.shape
	}
	return &Literal{shape: shapes.MakeTuple(elementShapes...), elements: elements}
}

// Shape returns the shape of the literal. It shouldn't be modified.
func (l *Literal) Shape() shapes.Shape { return l.shape }

// DType returns the element type of the literal.
func (l *Literal) DType() shapes.DType { return l.shape.DType }

// IsTuple returns whether the literal is a tuple.
func (l *Literal) IsTuple() bool { return l.shape.IsTuple() }

// TupleElement returns the i-th element of a tuple literal.
func (l *Literal) TupleElement(i int) *Literal {
	if !l.IsTuple() || i < 0 || i >= len(l.elements) {
		exceptions.Panicf("TupleElement(%d) invalid for literal of shape %s", i, l.shape)
	}
	return l.elements[i]
}

// TupleElements returns the elements of a tuple literal. The slice shouldn't be modified.
func (l *Literal) TupleElements() []*Literal { return l.elements }

// Data returns the flat storage of an array literal, in layout order.
// It panics if T doesn't match the literal's DType.
func Data[T Element](l *Literal) []T {
	data, ok := l.data.([]T)
	if !ok {
		exceptions.Panicf("literal.Data[%s]: literal has shape %s", DTypeOf[T](), l.shape)
	}
	return data
}

func (l *Literal) checkIndices(indices []int) {
	if !l.shape.InBounds(indices) {
		exceptions.Panicf("indices %v out of bounds for literal of shape %s", indices, l.shape)
	}
}

// Get returns the element at the given multi-dimensional index.
// It panics if T doesn't match the literal's DType or if the index is out of bounds.
func Get[T Element](l *Literal, indices ...int) T {
	l.checkIndices(indices)
	return Data[T](l)[l.shape.LinearIndex(indices)]
}

// Set sets the element at the given multi-dimensional index.
// It panics if T doesn't match the literal's DType or if the index is out of bounds.
func Set[T Element](l *Literal, value T, indices ...int) {
	l.checkIndices(indices)
	Data[T](l)[l.shape.LinearIndex(indices)] = value
}

// GetAny returns the element at the given index boxed as an `any`.
func (l *Literal) GetAny(indices ...int) any {
	l.checkIndices(indices)
	return elementAt(l.data, l.shape.LinearIndex(indices))
}

// GetInt64 returns the element at the given index converted to int64. Bool is converted to 0 or 1.
func (l *Literal) GetInt64(indices ...int) int64 {
	return valueOf(l.GetAny(indices...)).asInt64()
}

// GetFloat64 returns the element at the given index converted to float64.
func (l *Literal) GetFloat64(indices ...int) float64 {
	return valueOf(l.GetAny(indices...)).asFloat64()
}

// Populate sets every element of the array literal to fn(indices).
func Populate[T Element](l *Literal, fn func(indices []int) T) error {
	data, ok := l.data.([]T)
	if !ok {
		return errors.Errorf("Populate[%s] called on literal of shape %s", DTypeOf[T](), l.shape)
	}
	for indices := range l.shape.Iter() {
		data[l.shape.LinearIndex(indices)] = fn(indices)
	}
	return nil
}

// PopulateFromAny sets every element of the array literal to fn(indices), which must return values of the
// Go type matching the literal's DType.
func (l *Literal) PopulateFromAny(fn func(indices []int) any) {
	for indices := range l.shape.Iter() {
		setElementAt(l.data, l.shape.LinearIndex(indices), fn(indices))
	}
}

// Clone returns a deep copy of the literal.
func (l *Literal) Clone() *Literal {
	l2 := &Literal{shape: l.shape.Clone()}
	if l.IsTuple() {
		l2.elements = make([]*Literal, len(l.elements))
		for ii, element := range l.elements {
			l2.elements[ii] = element.Clone()
		}
		return l2
	}
	if l.data != nil {
		l2.data = cloneStorage(l.data)
	}
	return l2
}

// Equal returns whether both literals have the same shape (ignoring layouts) and the same elements,
// compared in logical order.
func (l *Literal) Equal(l2 *Literal) bool {
	if l == nil || l2 == nil {
		return l == l2
	}
	if !l.shape.Equal(l2.shape) {
		return false
	}
	if l.IsTuple() {
		for ii, element := range l.elements {
			if !element.Equal(l2.elements[ii]) {
				return false
			}
		}
		return true
	}
	if !l.shape.IsArray() {
		return true
	}
	for indices := range l.shape.Iter() {
		if elementAt(l.data, l.shape.LinearIndex(indices)) != elementAt(l2.data, l2.shape.LinearIndex(indices)) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Arrays are printed in row-major order.
func (l *Literal) String() string {
	if l.IsTuple() {
		parts := make([]string, len(l.elements))
		for ii, element := range l.elements {
			parts[ii] = element.String()
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
	}
	if !l.shape.IsArray() {
		return l.shape.String()
	}
	values := make([]string, 0, l.shape.Size())
	for indices := range l.shape.Iter() {
		values = append(values, fmt.Sprint(elementAt(l.data, l.shape.LinearIndex(indices))))
	}
	if l.shape.IsScalar() {
		return fmt.Sprintf("%s %s", l.shape, values[0])
	}
	return fmt.Sprintf("%s {%s}", l.shape, strings.Join(values, ", "))
}
