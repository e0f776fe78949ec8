// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/evaluator"
	"github.com/gomlx/hlo/hlo/shapeinference"
	"github.com/gomlx/hlo/types/status"
)

// Compiler implements backends.Compiler. "Compiling" verifies that every instruction is supported by the
// evaluator and that its declared shape is the inferred one, and sets the default layouts on the module
// configuration if they are not set.
type Compiler struct {
	backend *Backend
}

var _ backends.Compiler = &Compiler{}

// Compile implements backends.Compiler.
func (c *Compiler) Compile(module *hlo.Module, executor backends.StreamExecutor) (backends.Executable, error) {
	start := time.Now()
	if _, err := c.backend.executorOf(executor); err != nil {
		return nil, err
	}
	for _, computation := range module.Computations() {
		if err := verifyComputation(computation); err != nil {
			return nil, errors.WithMessagef(err, "compiling module %q", module.Name())
		}
	}
	config := module.Config()
	if !config.EntryComputationLayout.ResultLayoutIsSet() {
		config.EntryComputationLayout.SetToDefaultLayout()
	}
	klog.V(1).Infof("interpreter: compiled module %q in %s", module.Name(), time.Since(start))
	return &Executable{backend: c.backend, module: module}, nil
}

// CompileBatch implements backends.Compiler: the modules are compiled in parallel.
func (c *Compiler) CompileBatch(modules []*hlo.Module, executors []backends.StreamExecutor) ([]backends.Executable, error) {
	if len(modules) != len(executors) {
		return nil, status.InvalidArgumentf("CompileBatch got %d modules but %d executors", len(modules), len(executors))
	}
	executables := make([]backends.Executable, len(modules))
	var g errgroup.Group
	if maxParallelism := c.backend.pool.MaxParallelism(); maxParallelism > 0 {
		g.SetLimit(maxParallelism)
	}
	for ii, module := range modules {
		g.Go(func() error {
			executable, err := c.Compile(module, executors[ii])
			executables[ii] = executable
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return executables, nil
}

// verifyComputation checks all instructions are supported by the evaluator and have the inferred shapes.
func verifyComputation(computation *hlo.Computation) error {
	for _, inst := range computation.Instructions() {
		if !evaluator.IsSupported(inst.Opcode()) {
			return status.Unimplementedf("%s: opcode %s not supported by the interpreter backend", inst.Name(), inst.Opcode())
		}
		inferred, err := shapeinference.InstructionShape(inst)
		if err != nil {
			return errors.WithMessagef(err, "in computation %q, instruction %s", computation.Name(), inst.Name())
		}
		if !inferred.Equal(inst.Shape()) {
			return status.InvalidArgumentf("in computation %q, instruction %s declares shape %s but it is inferred to be %s",
				computation.Name(), inst.Name(), inst.Shape(), inferred)
		}
	}
	return nil
}
