// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// DataHandle identifies a value (an Allocation) held by the service.
type DataHandle int64

// Allocation is a value stored in the devices: one copy per replica, the first one being the primary.
type Allocation struct {
	handle   DataHandle
	tag      string
	shape    shapes.Shape
	memories []backends.DeviceMemory
}

// Handle of the allocation.
func (a *Allocation) Handle() DataHandle { return a.handle }

// Tag describes where the allocation came from.
func (a *Allocation) Tag() string { return a.tag }

// Shape of the value.
func (a *Allocation) Shape() shapes.Shape { return a.shape }

// Primary returns the memory of the first replica.
func (a *Allocation) Primary() backends.DeviceMemory { return a.memories[0] }

// OnDevice returns the copy of the value stored in the device with the given ordinal.
func (a *Allocation) OnDevice(ordinal int) (backends.DeviceMemory, error) {
	for _, memory := range a.memories {
		if memory.Ordinal() == ordinal {
			return memory, nil
		}
	}
	ordinals := make([]int, len(a.memories))
	for ii, memory := range a.memories {
		ordinals[ii] = memory.Ordinal()
	}
	return nil, status.InvalidArgumentf("data handle %d (%s) is on devices %v, but it is used on device #%d: device mismatch",
		a.handle, a.tag, ordinals, ordinal)
}

// String implements fmt.Stringer.
func (a *Allocation) String() string {
	return fmt.Sprintf("allocation #%d %s (%s, %d replicas)", a.handle, a.shape, a.tag, len(a.memories))
}

// AllocationTracker owns the values stored in the devices on behalf of the clients, and hands out their handles.
//
// It is safe for concurrent use.
type AllocationTracker struct {
	backend backends.Backend

	mu          sync.Mutex
	next        DataHandle
	allocations map[DataHandle]*Allocation
}

// NewAllocationTracker returns an empty tracker for the given backend.
func NewAllocationTracker(backend backends.Backend) *AllocationTracker {
	return &AllocationTracker{
		backend:     backend,
		next:        1,
		allocations: make(map[DataHandle]*Allocation),
	}
}

// Register takes ownership of the memories (one per replica, all with the same shape) and returns the handle
// to the new allocation.
func (t *AllocationTracker) Register(memories []backends.DeviceMemory, tag string) (DataHandle, error) {
	if len(memories) == 0 {
		return 0, status.Internalf("registering allocation %q without device memory", tag)
	}
	shape := memories[0].Shape()
	var size uintptr
	for _, memory := range memories {
		size += memory.Size()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	handle := t.next
	t.next++
	t.allocations[handle] = &Allocation{handle: handle, tag: tag, shape: shape, memories: memories}
	klog.V(2).Infof("registered data handle %d: %s %s in %d replica(s), %s",
		handle, tag, shape, len(memories), humanize.Bytes(uint64(size)))
	return handle, nil
}

// Resolve returns the allocation with the given handle.
func (t *AllocationTracker) Resolve(handle DataHandle) (*Allocation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, found := t.allocations[handle]
	if !found {
		return nil, status.NotFoundf("data handle %d not found", handle)
	}
	return a, nil
}

// Unregister removes the allocation and frees its device memory.
func (t *AllocationTracker) Unregister(handle DataHandle) error {
	t.mu.Lock()
	a, found := t.allocations[handle]
	delete(t.allocations, handle)
	t.mu.Unlock()
	if !found {
		return status.NotFoundf("data handle %d not found", handle)
	}
	for _, memory := range a.memories {
		executor, err := t.backend.Executor(memory.Ordinal())
		if err != nil {
			return err
		}
		if err = executor.Deallocate(memory); err != nil {
			return errors.WithMessagef(err, "unregistering %s", a)
		}
	}
	klog.V(2).Infof("unregistered data handle %d (%s)", handle, a.tag)
	return nil
}

// Reset forgets all the allocations without freeing their memory, for when the devices were reset.
// It returns the number of allocations dropped.
func (t *AllocationTracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.allocations)
	clear(t.allocations)
	return n
}

// DeconstructTuple registers each element of the tuple allocation as a new allocation, and returns their
// handles. Nested tuples are not supported.
func (t *AllocationTracker) DeconstructTuple(handle DataHandle) ([]DataHandle, error) {
	a, err := t.Resolve(handle)
	if err != nil {
		return nil, err
	}
	if !a.shape.IsTuple() {
		return nil, status.InvalidArgumentf("data handle %d has shape %s, it is not a tuple", handle, a.shape)
	}
	if a.shape.IsNestedTuple() {
		return nil, status.Unimplementedf("deconstructing nested tuple %s (data handle %d) is not implemented",
			a.shape, handle)
	}
	numElements := a.shape.TupleSize()
	elements := make([][]backends.DeviceMemory, numElements)
	for _, memory := range a.memories {
		executor, err := t.backend.Executor(memory.Ordinal())
		if err != nil {
			return nil, err
		}
		replicaElements, err := t.backend.TransferManager().TupleElements(executor, memory)
		if err != nil {
			return nil, errors.WithMessagef(err, "deconstructing %s", a)
		}
		for ii, element := range replicaElements {
			elements[ii] = append(elements[ii], element)
		}
	}
	handles := make([]DataHandle, numElements)
	for ii := range elements {
		handles[ii], err = t.Register(elements[ii], fmt.Sprintf("element %d of tuple %d", ii, handle))
		if err != nil {
			return nil, err
		}
	}
	return handles, nil
}
