// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/evaluator"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// Executable implements backends.Executable by evaluating the module's entry computation.
type Executable struct {
	backend *Backend
	module  *hlo.Module
}

var _ backends.Executable = &Executable{}

// Module implements backends.Executable.
func (e *Executable) Module() *hlo.Module { return e.module }

// ResultShape implements backends.Executable.
func (e *Executable) ResultShape() shapes.Shape {
	return e.module.Config().EntryComputationLayout.ResultShape
}

// ExecuteOnStream implements backends.Executable.
func (e *Executable) ExecuteOnStream(run *backends.RunOptions, args []backends.DeviceMemory) (
	backends.DeviceMemory, *backends.ExecutionProfile, error) {
	if run == nil || run.Stream == nil || run.Executor == nil {
		return nil, nil, status.InvalidArgumentf("executing %q requires a stream and an executor", e.module.Name())
	}
	executor, err := e.backend.executorOf(run.Executor)
	if err != nil {
		return nil, nil, err
	}
	if run.Stream.Ordinal() != executor.ordinal {
		return nil, nil, status.InvalidArgumentf("stream is on device #%d but executor is device #%d",
			run.Stream.Ordinal(), executor.ordinal)
	}
	values := make([]*literal.Literal, len(args))
	for ii, arg := range args {
		if arg.Ordinal() != executor.ordinal {
			return nil, nil, status.InvalidArgumentf(
				"argument #%d of %q is on device #%d, but the execution is on device #%d: device mismatch",
				ii, e.module.Name(), arg.Ordinal(), executor.ordinal)
		}
		m, err := executor.memoryOf(arg)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "argument #%d of %q", ii, e.module.Name())
		}
		values[ii] = m.value
	}

	start := time.Now()
	result, err := evaluator.New().EvaluateModule(e.module, values...)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "executing %q on device #%d", e.module.Name(), executor.ordinal)
	}
	if resultShape := e.ResultShape(); resultShape.HasLayout() {
		result, err = result.RelayoutShape(resultShape)
		if err != nil {
			return nil, nil, status.Internalf("executing %q: failed to set result layout %s: %v",
				e.module.Name(), resultShape, err)
		}
	}
	profile := &backends.ExecutionProfile{ComputeTime: time.Since(start)}
	klog.V(2).Infof("interpreter: executed %q on device #%d in %s", e.module.Name(), executor.ordinal, profile.ComputeTime)
	return executor.register(result), profile, nil
}
