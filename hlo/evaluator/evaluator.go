// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package evaluator implements a reference interpreter of hlo computations: it computes a literal.Literal for
// every instruction, given concrete values for the parameters, without compiling anything.
//
// It favors simplicity over speed: it is used for constant folding and as a reference to test backends.
//
// Element-wise operations don't support implicit broadcasting, and the 16-bit types (Float16, Int16, UInt16)
// are not supported by the typed operations: both return errors instead of silently producing wrong results.
//
// The output shape of every instruction is verified with package shapeinference: a mismatch against the declared
// shape is a bug in the construction of the computation, and the evaluator panics with an Internal status.Error.
package evaluator

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/status"
)

// Evaluator evaluates hlo computations. Values computed for each instruction are memoized during one call to
// one of the Evaluate methods, and cleared at the start of the next one.
//
// An Evaluator is not safe for concurrent use, but it can be reused after a failed evaluation.
type Evaluator struct {
	args      []*literal.Literal
	evaluated map[*hlo.Instruction]*literal.Literal
}

// New returns a new Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// EvaluateModule evaluates the entry computation of the module with the given arguments.
func (e *Evaluator) EvaluateModule(module *hlo.Module, args ...*literal.Literal) (*literal.Literal, error) {
	if klog.V(2).Enabled() {
		klog.Infof("Evaluator.EvaluateModule:\n%s", module)
	}
	return e.Evaluate(module.EntryComputation(), args...)
}

// Evaluate the computation with the given arguments, one per parameter. It returns the value of the root instruction.
func (e *Evaluator) Evaluate(computation *hlo.Computation, args ...*literal.Literal) (*literal.Literal, error) {
	return e.EvaluateFrom(computation, computation.Root().ID(), args...)
}

// EvaluateFrom evaluates the sub-graph of the computation ending at the instruction with the given id, and returns
// its value. All parameters of the computation must be given, even if not used by the sub-graph.
func (e *Evaluator) EvaluateFrom(computation *hlo.Computation, id hlo.InstructionID, args ...*literal.Literal) (*literal.Literal, error) {
	if id < 0 || int(id) >= len(computation.Instructions()) {
		return nil, status.InvalidArgumentf("instruction id %d out of range for computation %q with %d instructions",
			id, computation.Name(), len(computation.Instructions()))
	}
	if len(args) != computation.NumParameters() {
		return nil, status.InvalidArgumentf("computation %q takes %d parameters, but %d arguments were given",
			computation.Name(), computation.NumParameters(), len(args))
	}
	for ii, arg := range args {
		paramShape := computation.ParameterInstruction(ii).Shape()
		if arg == nil || !arg.Shape().Equal(paramShape) {
			var argShape any = "<nil>"
			if arg != nil {
				argShape = arg.Shape()
			}
			return nil, status.InvalidArgumentf("argument #%d of computation %q has shape %s, but parameter has shape %s",
				ii, computation.Name(), argShape, paramShape)
		}
	}
	e.args = args
	e.evaluated = make(map[*hlo.Instruction]*literal.Literal)
	for _, inst := range computation.PostOrderFrom(id) {
		if err := e.visit(inst); err != nil {
			return nil, err
		}
	}
	return e.evaluated[computation.Instruction(id)].Clone(), nil
}

// EvaluateInstruction evaluates a single instruction, using operands as the values of its operands, in order.
func (e *Evaluator) EvaluateInstruction(inst *hlo.Instruction, operands ...*literal.Literal) (*literal.Literal, error) {
	if inst.Opcode() == hlo.OpcodeParameter {
		return nil, status.InvalidArgumentf("cannot evaluate parameter %s by itself", inst.Name())
	}
	if len(operands) != inst.OperandCount() {
		return nil, status.InvalidArgumentf("%s takes %d operands, but %d values were given",
			inst.Name(), inst.OperandCount(), len(operands))
	}
	e.args = nil
	e.evaluated = make(map[*hlo.Instruction]*literal.Literal)
	for ii, operand := range inst.Operands() {
		if operands[ii] == nil || !operands[ii].Shape().Equal(operand.Shape()) {
			return nil, status.InvalidArgumentf("value given for operand #%d of %s doesn't match its shape %s",
				ii, inst.Name(), operand.Shape())
		}
		e.evaluated[operand] = operands[ii]
	}
	if err := e.visit(inst); err != nil {
		return nil, err
	}
	return e.evaluated[inst].Clone(), nil
}

// TryEvaluate evaluates an instruction whose operands are all constants. It returns false if the instruction
// has non-constant operands or if it fails to evaluate.
func (e *Evaluator) TryEvaluate(inst *hlo.Instruction) (*literal.Literal, bool) {
	operands := make([]*literal.Literal, 0, inst.OperandCount())
	for _, operand := range inst.Operands() {
		if operand.Opcode() != hlo.OpcodeConstant {
			klog.V(1).Infof("TryEvaluate(%s) failed: operand %s is not a constant", inst.Name(), operand.Name())
			return nil, false
		}
		operands = append(operands, operand.Literal())
	}
	result, err := e.EvaluateInstruction(inst, operands...)
	if err != nil {
		klog.V(1).Infof("TryEvaluate(%s) failed: %v", inst.Name(), err)
		return nil, false
	}
	return result, true
}

// visit evaluates inst, whose operands must have already been evaluated, and memoizes its value.
func (e *Evaluator) visit(inst *hlo.Instruction) error {
	klog.V(2).Infof("About to visit %s", inst)
	var result *literal.Literal
	switch inst.Opcode() {
	case hlo.OpcodeParameter, hlo.OpcodeConstant:
		if err := checkShapeLaw(inst); err != nil {
			return errors.WithMessagef(err, "evaluating %s", inst.Name())
		}
		if inst.Opcode() == hlo.OpcodeParameter {
			result = e.args[inst.ParameterNumber()]
		} else {
			result = inst.Literal()
		}
	default:
		operands := make([]*literal.Literal, inst.OperandCount())
		for ii, operand := range inst.Operands() {
			operands[ii] = e.evaluated[operand]
		}
		var err error
		result, err = dispatch(inst, operands)
		if err != nil {
			return errors.WithMessagef(err, "evaluating %s", inst.Name())
		}
	}
	e.evaluated[inst] = result
	if klog.V(3).Enabled() {
		klog.Infof("Finished visiting %s; evaluated value is: %s", inst.Name(), result)
	}
	return nil
}
