// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package service implements the execution service: clients build computations one instruction at a time,
// transfer values to the devices, and execute the computations on them.
//
// Computations are compiled by a backends.Backend on first use, and the executables are cached per
// computation version and module configuration. Values stay in the devices, referred to by a DataHandle,
// until they are transferred back to the client.
//
// Example:
//
//	svc := must.M1(service.New(service.DefaultOptions()))
//	defer svc.Close()
//	h := svc.NewComputation("add_one")
//	... add instructions with svc.Op(h, req) ...
//	x := must.M1(svc.TransferToServer(literal.Vector([]float32{1, 2})))
//	result := must.M1(svc.Execute(ctx, service.ExecuteRequest{Computation: h, Arguments: []service.DataHandle{x}}))
//	value := must.M1(svc.TransferToClient(result.Output, nil))
package service

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/service/computation"
	"github.com/gomlx/hlo/service/session"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// Service executes computations built by its clients. It is safe for concurrent use.
type Service struct {
	opts        Options
	backend     backends.Backend
	ownsBackend bool

	placer       backends.ComputationPlacer
	streams      *backends.StreamPool
	computations *computation.Tracker
	allocations  *AllocationTracker
	executions   *ExecutionTracker
	cache        *CompilationCache
	store        *session.Store
}

// New creates a service with the backend configured in the options.
func New(opts Options) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var backend backends.Backend
	var err error
	if opts.Backend == "" {
		backend, err = backends.New()
	} else {
		backend, err = backends.NewWithConfig(opts.Backend)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "creating service backend")
	}
	s, err := NewWithBackend(backend, opts)
	if err != nil {
		backend.Finalize()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}

// NewWithBackend creates a service that runs on the given backend. opts.Backend is ignored.
// The backend is not finalized when the service is closed.
func NewWithBackend(backend backends.Backend, opts Options) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		opts:         opts,
		backend:      backend,
		streams:      backends.NewStreamPool(opts.MaxStreamsPerDevice),
		computations: computation.NewTracker(),
		allocations:  NewAllocationTracker(backend),
		executions:   NewExecutionTracker(),
		cache:        NewCompilationCache(),
	}
	if opts.SnapshotStore != "" {
		store, err := session.OpenStore(opts.SnapshotStore)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	klog.V(1).Infof("service created on backend %s (%d devices), %d replica(s)",
		backend.Name(), backend.DeviceCount(), opts.NumberOfReplicas)
	return s, nil
}

// Close releases the resources of the service.
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
		s.store = nil
	}
	if s.ownsBackend {
		s.backend.Finalize()
	}
	return err
}

// Backend used by the service.
func (s *Service) Backend() backends.Backend { return s.backend }

// Options the service was created with.
func (s *Service) Options() Options { return s.opts }

// SnapshotStore returns the store of session modules, or nil if Options.SnapshotStore was not set.
func (s *Service) SnapshotStore() *session.Store { return s.store }

// NewComputation creates a new empty computation.
func (s *Service) NewComputation(name string) computation.Handle {
	return s.computations.NewComputation(name)
}

// Op adds an instruction to the computation, creating a new version of it. It returns the id of the new
// instruction and its shape.
func (s *Service) Op(handle computation.Handle, req *computation.OpRequest) (hlo.InstructionID, shapes.Shape, error) {
	return s.computations.Op(handle, req)
}

// GetComputationShape returns the program shape of the current version of the computation.
func (s *Service) GetComputationShape(handle computation.Handle) (hlo.ProgramShape, error) {
	vh, err := s.computations.Versioned(handle)
	if err != nil {
		return hlo.ProgramShape{}, err
	}
	return s.computations.ProgramShape(vh)
}

// GetLocalShape returns the shape of one instruction of the computation.
func (s *Service) GetLocalShape(handle computation.Handle, id hlo.InstructionID) (shapes.Shape, error) {
	uc, err := s.computations.Resolve(handle)
	if err != nil {
		return shapes.Invalid(), err
	}
	return uc.Shape(id)
}

// IsConstant returns whether the instruction can be computed without any parameter.
func (s *Service) IsConstant(handle computation.Handle, id hlo.InstructionID) (bool, error) {
	uc, err := s.computations.Resolve(handle)
	if err != nil {
		return false, err
	}
	return uc.IsConstant(id)
}

// GetComputationStats returns the estimated cost of the current version of the computation.
func (s *Service) GetComputationStats(handle computation.Handle) (hlo.ComputationStats, error) {
	vh, err := s.computations.Versioned(handle)
	if err != nil {
		return hlo.ComputationStats{}, err
	}
	c, err := s.computations.Build(vh)
	if err != nil {
		return hlo.ComputationStats{}, err
	}
	return hlo.CostAnalysis(c), nil
}

// SnapshotComputation returns a snapshot of the current version of the computation, including the
// computations it embeds.
func (s *Service) SnapshotComputation(handle computation.Handle) (*computation.Snapshot, error) {
	return s.computations.Snapshot(handle)
}

// LoadComputationSnapshot registers the computations in the snapshot, and returns the handle of its
// entry computation.
func (s *Service) LoadComputationSnapshot(snapshot *computation.Snapshot) (computation.Handle, error) {
	return s.computations.LoadSnapshot(snapshot)
}

// versioned returns the current version of the computation, which must not be empty.
func (s *Service) versioned(handle computation.Handle) (computation.VersionedHandle, string, error) {
	uc, err := s.computations.Resolve(handle)
	if err != nil {
		return computation.VersionedHandle{}, "", err
	}
	vh := uc.VersionedHandle()
	if vh.Version == 0 {
		return vh, uc.Name(), status.InvalidArgumentf("computations may not be empty: computation %q has no instructions", uc.Name())
	}
	return vh, uc.Name(), nil
}

// endSpan records the error, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetStatus(otelcodes.Ok, "")
	}
	span.End()
}

func computationAttributes(name string, vh computation.VersionedHandle) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("computation", name),
		attribute.Int64("version", vh.Version),
	}
}
