// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/service/computation"
	"github.com/gomlx/hlo/service/session"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
	"github.com/gomlx/hlo/types/xsync"
)

// ExecutionOptions configures one execution.
type ExecutionOptions struct {
	// ResultShape, if set, is the shape with layout the result must have.
	ResultShape *shapes.Shape

	// Seed for random number generation.
	Seed int64

	DebugOptions hlo.DebugOptions

	// DeviceHandles where to run the computation. Execute takes at most one (the default runs in the first
	// devices), and ExecuteParallel requires exactly one per request.
	DeviceHandles []DeviceHandle
}

// ExecuteRequest asks to run the current version of a computation.
type ExecuteRequest struct {
	Computation computation.Handle
	Arguments   []DataHandle
	Options     ExecutionOptions
}

// CreateModuleConfig returns the module configuration to compile a computation with the given program shape
// to run with arguments of the given shapes.
//
// The argument shapes must be compatible with the parameters. Their layouts become the parameter layouts.
func (s *Service) CreateModuleConfig(programShape hlo.ProgramShape, argShapes []shapes.Shape,
	opts ExecutionOptions) (*hlo.ModuleConfig, error) {
	if len(argShapes) != len(programShape.Parameters) {
		return nil, status.InvalidArgumentf("computation takes %d parameters, but %d arguments were given",
			len(programShape.Parameters), len(argShapes))
	}
	config := hlo.NewModuleConfig(programShape)
	for ii, argShape := range argShapes {
		if err := shapes.CheckCompatible(programShape.Parameters[ii], argShape); err != nil {
			return nil, status.InvalidArgumentf("argument %d does not match parameter %d: %v", ii, ii, err)
		}
		config.EntryComputationLayout.ParameterShapes[ii] = argShape.Clone()
	}
	if opts.ResultShape != nil {
		resultShape := *opts.ResultShape
		if !resultShape.HasLayout() {
			return nil, status.InvalidArgumentf("result shape %s requested without a layout", resultShape)
		}
		if err := resultShape.Validate(); err != nil {
			return nil, status.InvalidArgumentf("invalid result shape requested: %v", err)
		}
		if !resultShape.Equal(programShape.Result) {
			return nil, status.InvalidArgumentf("result shape %s requested, but computation returns %s",
				resultShape, programShape.Result)
		}
		config.EntryComputationLayout.ResultShape = resultShape.Clone()
	}
	config.ReplicaCount = s.opts.NumberOfReplicas
	config.Seed = opts.Seed
	config.DebugOptions = opts.DebugOptions
	return config, nil
}

// preparedExecution holds everything needed to compile and run one computation on all its replicas.
type preparedExecution struct {
	name      string
	vh        computation.VersionedHandle
	config    *hlo.ModuleConfig // Before compilation: it is the cache key.
	executors []backends.StreamExecutor
	args      [][]backends.DeviceMemory // Per replica.

	executable backends.Executable
	profile    backends.ExecutionProfile
}

func (p *preparedExecution) attributes() []attribute.KeyValue {
	return append(computationAttributes(p.name, p.vh), attribute.Int("replicas", len(p.executors)))
}

// prepare resolves the computation version, the arguments of each replica and the module configuration.
func (s *Service) prepare(req ExecuteRequest, device DeviceHandle) (*preparedExecution, error) {
	vh, name, err := s.versioned(req.Computation)
	if err != nil {
		return nil, err
	}
	p := &preparedExecution{name: name, vh: vh}
	programShape, err := s.computations.ProgramShape(vh)
	if err != nil {
		return nil, err
	}
	p.executors, err = s.replicaExecutors(device)
	if err != nil {
		return nil, err
	}
	allocations := make([]*Allocation, len(req.Arguments))
	argShapes := make([]shapes.Shape, len(req.Arguments))
	for ii, handle := range req.Arguments {
		allocations[ii], err = s.allocations.Resolve(handle)
		if err != nil {
			return nil, errors.WithMessagef(err, "argument %d of %q", ii, name)
		}
		argShapes[ii] = allocations[ii].Shape()
	}
	p.args = make([][]backends.DeviceMemory, len(p.executors))
	for replica, executor := range p.executors {
		p.args[replica] = make([]backends.DeviceMemory, len(allocations))
		for ii, a := range allocations {
			p.args[replica][ii], err = a.OnDevice(executor.Ordinal())
			if err != nil {
				return nil, errors.WithMessagef(err, "argument %d of %q, replica %d", ii, name, replica)
			}
		}
	}
	p.config, err = s.CreateModuleConfig(programShape, argShapes, req.Options)
	if err != nil {
		return nil, errors.WithMessagef(err, "executing %q", name)
	}
	return p, nil
}

// compile sets p.executable, from the cache if possible.
func (s *Service) compile(ctx context.Context, p *preparedExecution) error {
	executable, hit, compileTime, err := s.cache.GetOrCompile(p.vh, p.config,
		func(config *hlo.ModuleConfig) (executable backends.Executable, err error) {
			_, span := tracer.Start(ctx, "compile", trace.WithAttributes(p.attributes()...))
			defer func() { endSpan(span, err) }()
			module, err := s.computations.BuildModule(p.vh, config)
			if err != nil {
				return nil, err
			}
			return s.backend.Compiler().Compile(module, p.executors[0])
		})
	if err != nil {
		return errors.WithMessagef(err, "compiling %s (%q)", p.vh, p.name)
	}
	p.executable = executable
	p.profile.CompilationCacheHit = hit
	p.profile.CompileTime = compileTime
	return nil
}

// compileBatch compiles all the executions that are not in the cache with one call to the compiler.
func (s *Service) compileBatch(ctx context.Context, prepared []*preparedExecution) (err error) {
	_, span := tracer.Start(ctx, "compile_batch", trace.WithAttributes(attribute.Int("computations", len(prepared))))
	defer func() { endSpan(span, err) }()
	var missing []*preparedExecution
	var modules []*hlo.Module
	var executors []backends.StreamExecutor
	for _, p := range prepared {
		if executable, found := s.cache.Lookup(p.vh, p.config); found {
			compilationCacheRequests.WithLabelValues("hit").Inc()
			p.executable = executable
			p.profile.CompilationCacheHit = true
			continue
		}
		compilationCacheRequests.WithLabelValues("miss").Inc()
		module, err := s.computations.BuildModule(p.vh, p.config.Clone())
		if err != nil {
			return err
		}
		missing = append(missing, p)
		modules = append(modules, module)
		executors = append(executors, p.executors[0])
	}
	if len(missing) == 0 {
		return nil
	}
	start := time.Now()
	executables, err := s.backend.Compiler().CompileBatch(modules, executors)
	if err != nil {
		return errors.WithMessagef(err, "compiling %d computations", len(modules))
	}
	elapsed := time.Since(start)
	compileDuration.Observe(elapsed.Seconds())
	for ii, p := range missing {
		p.executable = executables[ii]
		p.profile.CompileTime = elapsed
		s.cache.Insert(p.vh, p.config, executables[ii])
	}
	return nil
}

// launch runs every replica of every prepared execution concurrently, each on its own stream, and waits
// for all of them to finish. It returns the result of each replica, per execution.
//
// If any replica fails, the results of the others are freed and the first error is returned.
func (s *Service) launch(prepared []*preparedExecution) ([][]backends.DeviceMemory, error) {
	results := make([][]backends.DeviceMemory, len(prepared))
	var g errgroup.Group
	for ii, p := range prepared {
		results[ii] = make([]backends.DeviceMemory, len(p.executors))
		var assignment *backends.DeviceAssignment
		if len(p.executors) > 1 {
			assignment = backends.NewDeviceAssignment(len(p.executors), 1)
			for replica, executor := range p.executors {
				assignment.Set(replica, 0, executor.Ordinal())
			}
		}
		for replica, executor := range p.executors {
			g.Go(func() error {
				stream, err := s.streams.BorrowStream(executor)
				if err != nil {
					return err
				}
				defer s.streams.ReturnStream(stream)
				run := &backends.RunOptions{
					Stream:           stream,
					Executor:         executor,
					DeviceAssignment: assignment,
					Seed:             p.config.Seed,
				}
				stream.Enqueue(func() error {
					result, _, err := p.executable.ExecuteOnStream(run, p.args[replica])
					results[ii][replica] = result
					return err
				})
				if err := stream.BlockHostUntilDone(); err != nil {
					return errors.WithMessagef(err, "replica %d of %q on device #%d", replica, p.name, executor.Ordinal())
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		for _, replicaResults := range results {
			s.deallocate(replicaResults)
		}
		return nil, err
	}
	return results, nil
}

// register the results of an execution, and records its session module if configured to.
func (s *Service) register(p *preparedExecution, results []backends.DeviceMemory) (DataHandle, error) {
	handle, err := s.allocations.Register(results, fmt.Sprintf("result of %s (%q)", p.vh, p.name))
	if err != nil {
		s.deallocate(results)
		return 0, err
	}
	dumpDir := p.config.DebugOptions.DumpExecutionsTo
	if dumpDir == "" {
		dumpDir = s.opts.DumpDirectory
	}
	if dumpDir != "" || s.store != nil {
		if err := s.recordSession(p, results[0], dumpDir); err != nil {
			klog.Warningf("failed to record session module of %s (%q): %+v", p.vh, p.name, err)
		}
	}
	return handle, nil
}

// recordSession writes the session module of the execution to the dump directory and the snapshot store.
func (s *Service) recordSession(p *preparedExecution, result backends.DeviceMemory, dumpDir string) error {
	snapshot, err := s.computations.SnapshotVersion(p.vh)
	if err != nil {
		return err
	}
	m := session.New(snapshot, p.vh.Version, s.backend.Name())
	transfer := s.backend.TransferManager()
	m.Arguments = make([]*literal.Literal, len(p.args[0]))
	for ii, arg := range p.args[0] {
		m.Arguments[ii], err = transfer.TransferLiteralFromDevice(p.executors[0], arg)
		if err != nil {
			return err
		}
	}
	m.Result, err = transfer.TransferLiteralFromDevice(p.executors[0], result)
	if err != nil {
		return err
	}
	if dumpDir != "" {
		if _, err = session.DumpToDirectory(m, dumpDir); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.Put(m)
	}
	return nil
}

// Execute runs the current version of the computation on all replicas, and waits for it to finish.
// The result stays in the devices: the returned DataHandle refers to it.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (result ExecuteResult, err error) {
	klog.V(1).Infof("running execute request")
	ctx, span := tracer.Start(ctx, "Service.Execute")
	defer func() { endSpan(span, err) }()
	start := time.Now()

	if len(req.Options.DeviceHandles) > 1 {
		return result, status.InvalidArgumentf("Execute takes at most one device handle, got %d: use ExecuteParallel",
			len(req.Options.DeviceHandles))
	}
	device := singleComputationDevice
	if len(req.Options.DeviceHandles) == 1 {
		device = req.Options.DeviceHandles[0]
	}
	p, err := s.prepare(req, device)
	if err != nil {
		return result, err
	}
	span.SetAttributes(p.attributes()...)
	if err = s.compile(ctx, p); err != nil {
		return result, err
	}
	computeStart := time.Now()
	results, err := s.launch([]*preparedExecution{p})
	if err != nil {
		return result, err
	}
	p.profile.ComputeTime = time.Since(computeStart)
	result.Output, err = s.register(p, results[0])
	if err != nil {
		return result, err
	}
	result.Profile = &p.profile
	executionDuration.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	klog.V(1).Infof("successfully completed 'execute' request")
	return result, nil
}

// ExecuteParallel runs the current version of each computation, each on the devices of its device handle,
// all at the same time. It waits for all of them to finish and returns the results in the order of the
// requests.
func (s *Service) ExecuteParallel(ctx context.Context, reqs []ExecuteRequest) (results []ExecuteResult, err error) {
	klog.V(1).Infof("running execute-parallel request with %d computations", len(reqs))
	ctx, span := tracer.Start(ctx, "Service.ExecuteParallel", trace.WithAttributes(
		attribute.Int("computations", len(reqs)), attribute.Int("replicas", s.opts.NumberOfReplicas)))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	if required, available := len(reqs)*s.opts.NumberOfReplicas, s.backend.DeviceCount(); required > available {
		return nil, status.ResourceExhaustedf("requested %d computations with %d replicas each, but only %d devices are available",
			len(reqs), s.opts.NumberOfReplicas, available)
	}
	prepared := make([]*preparedExecution, len(reqs))
	for ii, req := range reqs {
		if len(req.Options.DeviceHandles) != 1 {
			return nil, status.InvalidArgumentf("ExecuteParallel requires exactly one device handle per request, request %d has %d",
				ii, len(req.Options.DeviceHandles))
		}
		prepared[ii], err = s.prepare(req, req.Options.DeviceHandles[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "request %d", ii)
		}
	}
	if err = s.compileBatch(ctx, prepared); err != nil {
		return nil, err
	}
	computeStart := time.Now()
	replicaResults, err := s.launch(prepared)
	if err != nil {
		return nil, err
	}
	computeTime := time.Since(computeStart)
	results = make([]ExecuteResult, len(prepared))
	for ii, p := range prepared {
		p.profile.ComputeTime = computeTime
		results[ii].Output, err = s.register(p, replicaResults[ii])
		if err != nil {
			for _, r := range replicaResults[ii+1:] {
				s.deallocate(r)
			}
			return nil, err
		}
		results[ii].Profile = &p.profile
	}
	executionDuration.WithLabelValues("parallel").Observe(time.Since(start).Seconds())
	klog.V(1).Infof("successfully completed 'execute-parallel' request")
	return results, nil
}

// ExecuteAsync compiles the computation and starts its execution, without waiting for it to finish.
// The result is obtained with WaitForExecution.
func (s *Service) ExecuteAsync(ctx context.Context, req ExecuteRequest) (handle ExecutionHandle, err error) {
	klog.V(1).Infof("running execute-async request")
	ctx, span := tracer.Start(ctx, "Service.ExecuteAsync")
	defer func() { endSpan(span, err) }()

	device := singleComputationDevice
	if len(req.Options.DeviceHandles) > 0 {
		device = req.Options.DeviceHandles[0]
	}
	p, err := s.prepare(req, device)
	if err != nil {
		return handle, err
	}
	span.SetAttributes(p.attributes()...)
	if err = s.compile(ctx, p); err != nil {
		return handle, err
	}
	future := xsync.NewFuture[ExecuteResult]()
	go func() {
		start := time.Now()
		results, err := s.launch([]*preparedExecution{p})
		if err != nil {
			future.Resolve(ExecuteResult{}, err)
			return
		}
		p.profile.ComputeTime = time.Since(start)
		output, err := s.register(p, results[0])
		if err != nil {
			future.Resolve(ExecuteResult{}, err)
			return
		}
		executionDuration.WithLabelValues("async").Observe(p.profile.ComputeTime.Seconds())
		future.Resolve(ExecuteResult{Output: output, Profile: &p.profile}, nil)
	}()
	handle = s.executions.Register(fmt.Sprintf("%s (%q)", p.vh, p.name), future)
	klog.V(1).Infof("successfully started 'execute-async' request %s", handle)
	return handle, nil
}

// WaitForExecution blocks until the execution started with ExecuteAsync finishes, and returns its result.
// Each execution can only be waited for once.
func (s *Service) WaitForExecution(ctx context.Context, handle ExecutionHandle) (result ExecuteResult, err error) {
	_, span := tracer.Start(ctx, "Service.WaitForExecution", trace.WithAttributes(
		attribute.String("execution", handle.String())))
	defer func() { endSpan(span, err) }()
	return s.executions.Wait(handle)
}
