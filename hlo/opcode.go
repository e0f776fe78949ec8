// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import "fmt"

// Opcode enumerates the kinds of instructions of the computation IR.
type Opcode int

const (
	OpcodeInvalid Opcode = iota
	OpcodeParameter
	OpcodeConstant

	// Element-wise unary operations.
	OpcodeAbs
	OpcodeCeil
	OpcodeConvert
	OpcodeCopy
	OpcodeExp
	OpcodeFloor
	OpcodeIsFinite
	OpcodeLog
	OpcodeNegate
	OpcodeNot
	OpcodeSign
	OpcodeTanh

	// Element-wise binary operations.
	OpcodeAdd
	OpcodeAnd
	OpcodeDivide
	OpcodeEq
	OpcodeGe
	OpcodeGt
	OpcodeLe
	OpcodeLt
	OpcodeMaximum
	OpcodeMinimum
	OpcodeMultiply
	OpcodeNe
	OpcodeOr
	OpcodePower
	OpcodeRemainder
	OpcodeSubtract

	// Element-wise ternary operations.
	OpcodeClamp
	OpcodeSelect

	// Shape manipulation.
	OpcodeBroadcast
	OpcodeConcatenate
	OpcodeDynamicSlice
	OpcodeDynamicUpdateSlice
	OpcodePad
	OpcodeReshape
	OpcodeReverse
	OpcodeSlice
	OpcodeTranspose

	// Contractions.
	OpcodeConvolution
	OpcodeDot

	// Operations with embedded computations.
	OpcodeCall
	OpcodeMap
	OpcodeReduce
	OpcodeWhile

	// Tuples.
	OpcodeTuple
	OpcodeGetTupleElement

	// Operations that are part of the instruction set, but not covered by the reference evaluator.
	OpcodeCrossReplicaSum
	OpcodeCustomCall
	OpcodeInfeed
	OpcodeOutfeed
	OpcodeReducePrecision
	OpcodeReduceWindow
	OpcodeRng
	OpcodeSelectAndScatter

	// OpcodeLast should always be kept the last, it is used as a counter/marker for Opcode.
	OpcodeLast
)

var opcodeNames = [OpcodeLast]string{
	OpcodeInvalid:            "invalid",
	OpcodeParameter:          "parameter",
	OpcodeConstant:           "constant",
	OpcodeAbs:                "abs",
	OpcodeCeil:               "ceil",
	OpcodeConvert:            "convert",
	OpcodeCopy:               "copy",
	OpcodeExp:                "exponential",
	OpcodeFloor:              "floor",
	OpcodeIsFinite:           "is-finite",
	OpcodeLog:                "log",
	OpcodeNegate:             "negate",
	OpcodeNot:                "not",
	OpcodeSign:               "sign",
	OpcodeTanh:               "tanh",
	OpcodeAdd:                "add",
	OpcodeAnd:                "and",
	OpcodeDivide:             "divide",
	OpcodeEq:                 "equal-to",
	OpcodeGe:                 "greater-than-or-equal-to",
	OpcodeGt:                 "greater-than",
	OpcodeLe:                 "less-than-or-equal-to",
	OpcodeLt:                 "less-than",
	OpcodeMaximum:            "maximum",
	OpcodeMinimum:            "minimum",
	OpcodeMultiply:           "multiply",
	OpcodeNe:                 "not-equal-to",
	OpcodeOr:                 "or",
	OpcodePower:              "power",
	OpcodeRemainder:          "remainder",
	OpcodeSubtract:           "subtract",
	OpcodeClamp:              "clamp",
	OpcodeSelect:             "select",
	OpcodeBroadcast:          "broadcast",
	OpcodeConcatenate:        "concatenate",
	OpcodeDynamicSlice:       "dynamic-slice",
	OpcodeDynamicUpdateSlice: "dynamic-update-slice",
	OpcodePad:                "pad",
	OpcodeReshape:            "reshape",
	OpcodeReverse:            "reverse",
	OpcodeSlice:              "slice",
	OpcodeTranspose:          "transpose",
	OpcodeConvolution:        "convolution",
	OpcodeDot:                "dot",
	OpcodeCall:               "call",
	OpcodeMap:                "map",
	OpcodeReduce:             "reduce",
	OpcodeWhile:              "while",
	OpcodeTuple:              "tuple",
	OpcodeGetTupleElement:    "get-tuple-element",
	OpcodeCrossReplicaSum:    "cross-replica-sum",
	OpcodeCustomCall:         "custom-call",
	OpcodeInfeed:             "infeed",
	OpcodeOutfeed:            "outfeed",
	OpcodeReducePrecision:    "reduce-precision",
	OpcodeReduceWindow:       "reduce-window",
	OpcodeRng:                "rng",
	OpcodeSelectAndScatter:   "select-and-scatter",
}

// String returns the opcode name, as used in the textual dump of computations.
func (op Opcode) String() string {
	if op < 0 || op >= OpcodeLast {
		return fmt.Sprintf("Opcode(%d)", int(op))
	}
	return opcodeNames[op]
}

// IsElementwiseUnary returns whether op is an element-wise operation with one operand.
func (op Opcode) IsElementwiseUnary() bool {
	return op >= OpcodeAbs && op <= OpcodeTanh
}

// IsElementwiseBinary returns whether op is an element-wise operation with two operands.
func (op Opcode) IsElementwiseBinary() bool {
	return op >= OpcodeAdd && op <= OpcodeSubtract
}

// IsComparison returns whether op is one of the comparison operations, whose result is Bool.
func (op Opcode) IsComparison() bool {
	switch op {
	case OpcodeEq, OpcodeNe, OpcodeGe, OpcodeGt, OpcodeLe, OpcodeLt:
		return true
	}
	return false
}

// IsElementwise returns whether op is an element-wise operation (unary, binary or ternary).
func (op Opcode) IsElementwise() bool {
	return op.IsElementwiseUnary() || op.IsElementwiseBinary() || op == OpcodeClamp || op == OpcodeSelect
}

// IsTranscendental returns whether op computes a transcendental function.
func (op Opcode) IsTranscendental() bool {
	switch op {
	case OpcodeExp, OpcodeLog, OpcodeTanh, OpcodePower:
		return true
	}
	return false
}
