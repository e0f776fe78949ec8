// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package computation tracks the computations built by the clients of the execution service.
//
// Clients create a computation with Tracker.NewComputation and add instructions one at a time with
// Tracker.Op. Each instruction added creates a new version of the computation: executions refer to
// a VersionedHandle, which identifies the exact computation compiled, and is part of the key of the
// compilation cache.
package computation

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// Tracker owns the computations of the service and hands out their handles.
//
// It is safe for concurrent use.
type Tracker struct {
	mu           sync.Mutex
	nextHandle   Handle
	computations map[Handle]*UserComputation

	// built caches computations already built: a versioned computation never changes.
	built map[VersionedHandle]*hlo.Computation
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		nextHandle:   1,
		computations: make(map[Handle]*UserComputation),
		built:        make(map[VersionedHandle]*hlo.Computation),
	}
}

// NewComputation registers a new empty computation with the given name.
func (t *Tracker) NewComputation(name string) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	handle := t.nextHandle
	t.nextHandle++
	t.computations[handle] = NewUserComputation(name, handle)
	klog.V(2).Infof("new computation %q with handle %d", name, handle)
	return handle
}

// Resolve returns the computation with the given handle.
func (t *Tracker) Resolve(handle Handle) (*UserComputation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	uc, found := t.computations[handle]
	if !found {
		return nil, status.NotFoundf("computation handle %d not found", handle)
	}
	return uc, nil
}

// Op adds the request to the computation, and returns the id and shape of the new instruction.
//
// Embedded computations referred to with a version <= 0 are resolved to their current version.
func (t *Tracker) Op(handle Handle, req *OpRequest) (hlo.InstructionID, shapes.Shape, error) {
	uc, err := t.Resolve(handle)
	if err != nil {
		return -1, shapes.Invalid(), err
	}
	resolved := *req
	resolved.Computations = slices.Clone(req.Computations)
	for ii, vh := range resolved.Computations {
		if vh.Handle == handle {
			return -1, shapes.Invalid(), status.InvalidArgumentf("computation %q cannot embed itself", uc.Name())
		}
		if vh.Version <= 0 {
			callee, err := t.Resolve(vh.Handle)
			if err != nil {
				return -1, shapes.Invalid(), errors.WithMessagef(err, "embedded computation #%d of %s request", ii, req.Opcode)
			}
			resolved.Computations[ii].Version = callee.Version()
		}
	}
	return uc.AddOp(&resolved, t.Build)
}

// Build returns the computation at the given version. Built computations are cached.
func (t *Tracker) Build(vh VersionedHandle) (*hlo.Computation, error) {
	t.mu.Lock()
	c, found := t.built[vh]
	t.mu.Unlock()
	if found {
		return c, nil
	}
	uc, err := t.Resolve(vh.Handle)
	if err != nil {
		return nil, err
	}
	c, err = uc.Build(vh.Version, t.Build)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if previous, found := t.built[vh]; found {
		return previous, nil
	}
	t.built[vh] = c
	return c, nil
}

// BuildModule returns a module with the computation at the given version as its entry computation.
// If config is nil, a default one is used.
func (t *Tracker) BuildModule(vh VersionedHandle, config *hlo.ModuleConfig) (*hlo.Module, error) {
	entry, err := t.Build(vh)
	if err != nil {
		return nil, err
	}
	uc, err := t.Resolve(vh.Handle)
	if err != nil {
		return nil, err
	}
	module, err := hlo.NewModule(uc.Name(), entry, config)
	if err != nil {
		return nil, status.InvalidArgumentf("building module for %s: %v", vh, err)
	}
	return module, nil
}

// ProgramShape returns the program shape of the computation at the given version.
func (t *Tracker) ProgramShape(vh VersionedHandle) (hlo.ProgramShape, error) {
	c, err := t.Build(vh)
	if err != nil {
		return hlo.ProgramShape{}, err
	}
	return c.ProgramShape(), nil
}

// Versioned returns the handle to the current version of the computation.
func (t *Tracker) Versioned(handle Handle) (VersionedHandle, error) {
	uc, err := t.Resolve(handle)
	if err != nil {
		return VersionedHandle{}, err
	}
	return uc.VersionedHandle(), nil
}
