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

package shapes

import "fmt"

// DType indicates the element type of an array shape, or marks the shape as a tuple or opaque value.
//
// The numeric values match the primitive type enumeration of the XLA protos (`xla_data.proto`), hence it is an int32.
type DType int32

// DType constants must match `xla_data.proto`.
const (
	InvalidDType DType = iota
	Bool               // PRED
	Int8               // S8
	Int16              // S16
	Int32              // S32
	Int64              // S64
	UInt8              // U8
	UInt16             // U16
	UInt32             // U32
	UInt64             // U64
	Float16            // F16
	Float32            // F32
	Float64            // F64

	Tuple      DType = 13
	OpaqueType DType = 14
)

// NumDTypes is one past the largest DType value, used to size dispatch tables.
const NumDTypes = int(OpaqueType) + 1

// PRED type is an alias to Bool, used in `xla_data.proto`.
const PRED = Bool

const (
	S32 = Int32
	S64 = Int64
	U32 = UInt32
	U64 = UInt64
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

var dtypeNames = [NumDTypes]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	UInt8:        "UInt8",
	UInt16:       "UInt16",
	UInt32:       "UInt32",
	UInt64:       "UInt64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	Tuple:        "Tuple",
	OpaqueType:   "OpaqueType",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || int(dtype) >= NumDTypes || dtypeNames[dtype] == "" {
		return fmt.Sprintf("DType(%d)", int32(dtype))
	}
	return dtypeNames[dtype]
}

// IsValid returns whether dtype is one of the enumerated values.
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && int(dtype) < NumDTypes && dtypeNames[dtype] != ""
}

// IsArray returns whether dtype is the element type of an array, as opposed to a tuple or opaque value.
func (dtype DType) IsArray() bool {
	return dtype.IsValid() && dtype != Tuple && dtype != OpaqueType
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is an integer type, signed or unsigned.
func (dtype DType) IsInt() bool {
	return dtype.IsSigned() || dtype.IsUnsigned()
}

// IsSigned returns whether dtype is a signed integer type.
func (dtype DType) IsSigned() bool {
	return dtype == Int8 || dtype == Int16 || dtype == Int32 || dtype == Int64
}

// IsUnsigned returns whether dtype is an unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	return dtype == UInt8 || dtype == UInt16 || dtype == UInt32 || dtype == UInt64
}

// IsNumber returns whether dtype is an integer or float type.
func (dtype DType) IsNumber() bool { return dtype.IsInt() || dtype.IsFloat() }

// Size returns the number of bytes used by one element of the dtype. It's 0 for tuples, opaque and invalid types.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, UInt8:
		return 1
	case Int16, UInt16, Float16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 0
}

// Memory returns the number of bytes used by one element of the dtype, as an uintptr.
func (dtype DType) Memory() uintptr { return uintptr(dtype.Size()) }
