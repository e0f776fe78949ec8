// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package evaluator

import (
	"github.com/pkg/errors"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// execReduce accumulates the reduced axes of the operand, starting from the init value, by evaluating the
// reduction computation once per element with fresh scalar literals (accumulator, value).
//
// A new Evaluator is used for each evaluation of the embedded computation, so the memoized values of one
// application don't leak into the next.
func execReduce[T supported](inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	operand, init := operands[0], operands[1]
	toApply := inst.ToApply()
	operandShape := operand.Shape()
	rank := operandShape.Rank()

	reduced := make([]bool, rank)
	for _, axis := range inst.Dimensions() {
		reduced[axis] = true
	}
	counts := make([]int, rank)
	var keptAxes []int
	for axis := range rank {
		if reduced[axis] {
			counts[axis] = operandShape.Dimensions[axis]
		} else {
			counts[axis] = 1
			keptAxes = append(keptAxes, axis)
		}
	}

	initValue := literal.Get[T](init)
	result := literal.New(inst.Shape())
	base := make([]int, rank)
	for resultIndices := range result.Shape().Iter() {
		for ii, axis := range keptAxes {
			base[axis] = resultIndices[ii]
		}
		accumulator := initValue
		for operandIndices := range operandShape.IterRegion(base, counts, nil) {
			value := literal.Get[T](operand, operandIndices...)
			output, err := New().Evaluate(toApply, literal.Scalar(accumulator), literal.Scalar(value))
			if err != nil {
				return nil, errors.WithMessagef(err, "applying %q", toApply.Name())
			}
			accumulator = literal.Get[T](output)
		}
		literal.Set(result, accumulator, resultIndices...)
	}
	return result, nil
}

// execMap applies the scalar computation to each position of the operands.
func execMap(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	toApply := inst.ToApply()
	result := literal.New(inst.Shape())
	args := make([]*literal.Literal, len(operands))
	for indices := range result.Shape().Iter() {
		for ii, operand := range operands {
			args[ii] = literal.New(shapes.Scalar(operand.DType()))
			args[ii].SetFrom(nil, operand, indices)
		}
		output, err := New().Evaluate(toApply, args...)
		if err != nil {
			return nil, errors.WithMessagef(err, "applying %q", toApply.Name())
		}
		result.SetFrom(indices, output, nil)
	}
	return result, nil
}

func execCall(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	output, err := New().Evaluate(inst.ToApply(), operands...)
	if err != nil {
		return nil, errors.WithMessagef(err, "calling %q", inst.ToApply().Name())
	}
	return output, nil
}

// execWhile evaluates the body while the condition returns true. There is no limit in the number of iterations.
func execWhile(inst *hlo.Instruction, operands []*literal.Literal) (*literal.Literal, error) {
	called := inst.CalledComputations()
	condition, body := called[0], called[1]
	state := operands[0]
	for {
		keepGoing, err := New().Evaluate(condition, state)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating while condition %q", condition.Name())
		}
		if !keepGoing.Shape().Equal(shapes.Scalar(shapes.Bool)) {
			return nil, status.InvalidArgumentf("while condition %q returned %s", condition.Name(), keepGoing.Shape())
		}
		if !literal.Get[bool](keepGoing) {
			return state, nil
		}
		state, err = New().Evaluate(body, state)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating while body %q", body.Name())
		}
	}
}
