// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package computation

import (
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/shapeinference"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// Resolver builds the embedded computation with the given versioned handle.
type Resolver func(vh VersionedHandle) (*hlo.Computation, error)

// UserComputation is a computation built incrementally by a client, one OpRequest at a time.
//
// Every request added creates a new version: version v is the computation made of the first v requests,
// whose root is the instruction of the v-th request. Instruction ids are the indices of the requests.
//
// It is safe for concurrent use.
type UserComputation struct {
	name   string
	handle Handle

	// addMu serializes AddOp. mu guards requests and is never held while building: embedded computations
	// are built through the Resolver.
	addMu      sync.Mutex
	mu         sync.Mutex
	requests   []*OpRequest
	instShapes []shapes.Shape
}

// NewUserComputation returns an empty computation.
func NewUserComputation(name string, handle Handle) *UserComputation {
	return &UserComputation{name: name, handle: handle}
}

// Name of the computation.
func (uc *UserComputation) Name() string { return uc.name }

// Handle of the computation in its Tracker.
func (uc *UserComputation) Handle() Handle { return uc.handle }

// Version returns the current version: the number of requests added so far.
func (uc *UserComputation) Version() int64 {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return int64(len(uc.requests))
}

// VersionedHandle returns the handle to the current version.
func (uc *UserComputation) VersionedHandle() VersionedHandle {
	return VersionedHandle{Handle: uc.handle, Version: uc.Version()}
}

// AddOp validates and adds the request, returning the id of the new instruction and its shape.
//
// The embedded computations of the request must have their versions already resolved. The declared shape must
// be the inferred one: errors are InvalidArgument (or Unimplemented for opcodes shape inference doesn't know).
func (uc *UserComputation) AddOp(req *OpRequest, resolve Resolver) (hlo.InstructionID, shapes.Shape, error) {
	uc.addMu.Lock()
	defer uc.addMu.Unlock()
	requests := append(uc.Requests(uc.Version()), req)
	comp, err := uc.build(requests, identityIndices(len(requests)), resolve, false)
	if err != nil {
		return -1, shapes.Invalid(), status.InvalidArgumentf("invalid %s request for computation %q: %v",
			req.Opcode, uc.name, err)
	}
	inst := comp.Root()
	inferred, err := shapeinference.InstructionShape(inst)
	if err != nil {
		return -1, shapes.Invalid(), errors.WithMessagef(err, "adding %s to computation %q", req.Opcode, uc.name)
	}
	if !inferred.Equal(inst.Shape()) {
		return -1, shapes.Invalid(), status.InvalidArgumentf("%s request for computation %q declares shape %s, but it is inferred to be %s",
			req.Opcode, uc.name, inst.Shape(), inferred)
	}
	uc.mu.Lock()
	uc.requests = requests
	uc.instShapes = append(uc.instShapes, inst.Shape())
	uc.mu.Unlock()
	return inst.ID(), inst.Shape(), nil
}

// Build returns the computation at the given version.
func (uc *UserComputation) Build(version int64, resolve Resolver) (*hlo.Computation, error) {
	if version <= 0 {
		return nil, status.InvalidArgumentf("computations may not be empty: %q at version %d", uc.name, version)
	}
	if current := uc.Version(); version > current {
		return nil, status.InvalidArgumentf("computation %q has no version %d, current version is %d",
			uc.name, version, current)
	}
	requests := uc.Requests(version)
	comp, err := uc.build(requests, identityIndices(len(requests)), resolve, true)
	if err != nil {
		return nil, status.InvalidArgumentf("building %q at version %d: %v", uc.name, version, err)
	}
	return comp, nil
}

// BuildConstant returns a computation with only the instructions needed to compute the given one, which
// must not depend on any parameter. The given instruction is its root.
func (uc *UserComputation) BuildConstant(id hlo.InstructionID, resolve Resolver) (*hlo.Computation, error) {
	requests := uc.Requests(uc.Version())
	indices, parameter, err := reachableFrom(uc.name, requests, id)
	if err != nil {
		return nil, err
	}
	if parameter >= 0 {
		return nil, status.InvalidArgumentf("instruction %d of computation %q is not constant: it depends on parameter %d",
			id, uc.name, parameter)
	}
	return uc.build(requests, indices, resolve, true)
}

// IsConstant returns whether the given instruction doesn't depend on any parameter.
func (uc *UserComputation) IsConstant(id hlo.InstructionID) (bool, error) {
	_, parameter, err := reachableFrom(uc.name, uc.Requests(uc.Version()), id)
	if err != nil {
		return false, err
	}
	return parameter < 0, nil
}

// reachableFrom returns the indices of the requests reachable from id, in increasing order, and the number
// of one of the parameters reached, or -1 if none is.
func reachableFrom(name string, requests []*OpRequest, id hlo.InstructionID) (indices []int, parameter int, err error) {
	if id < 0 || int(id) >= len(requests) {
		return nil, -1, status.InvalidArgumentf("computation %q has no instruction %d", name, id)
	}
	parameter = -1
	reachable := make([]bool, id+1)
	reachable[id] = true
	for ii := int(id); ii >= 0; ii-- {
		if !reachable[ii] {
			continue
		}
		req := requests[ii]
		if req.Opcode == hlo.OpcodeParameter {
			parameter = req.ParameterNumber
		}
		for _, operand := range req.Operands {
			reachable[operand] = true
		}
	}
	for ii, ok := range reachable {
		if ok {
			indices = append(indices, ii)
		}
	}
	return indices, parameter, nil
}

// Shape returns the shape of the instruction with the given id.
func (uc *UserComputation) Shape(id hlo.InstructionID) (shapes.Shape, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if id < 0 || int(id) >= len(uc.instShapes) {
		return shapes.Invalid(), status.InvalidArgumentf("computation %q has no instruction %d", uc.name, id)
	}
	return uc.instShapes[id].Clone(), nil
}

// Requests returns a copy of the requests up to the given version.
func (uc *UserComputation) Requests(version int64) []*OpRequest {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	version = min(version, int64(len(uc.requests)))
	return slices.Clone(uc.requests[:max(version, 0)])
}

// build replays the requests with the given indices (in increasing order) into a new computation, whose root
// is the last one. Operands are remapped to the new instruction ids. If complete is false the parameter numbers
// are not required to be contiguous, and the computation is only good for validation.
func (uc *UserComputation) build(requests []*OpRequest, indices []int, resolve Resolver, complete bool) (*hlo.Computation, error) {
	b := hlo.NewBuilder(uc.name)
	newIDs := make(map[hlo.InstructionID]hlo.InstructionID, len(indices))
	remap := func(id hlo.InstructionID) hlo.InstructionID {
		if newID, found := newIDs[id]; found {
			return newID
		}
		return -1
	}
	for _, idx := range indices {
		req := requests[idx]
		called := make([]*hlo.Computation, len(req.Computations))
		for ii, vh := range req.Computations {
			c, err := resolve(vh)
			if err != nil {
				return nil, errors.WithMessagef(err, "instruction %d (%s) of %q", idx, req.Opcode, uc.name)
			}
			called[ii] = c
		}
		newIDs[hlo.InstructionID(idx)] = req.addTo(b, remap, called)
	}
	if !complete {
		return b.BuildIncomplete()
	}
	return b.Build()
}

func identityIndices(n int) []int {
	indices := make([]int, n)
	for ii := range indices {
		indices[ii] = ii
	}
	return indices
}
