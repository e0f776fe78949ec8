// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
	"github.com/gomlx/hlo/types/xsync"
)

// Memory is the backends.DeviceMemory of the interpreter: a literal owned by one simulated device.
type Memory struct {
	ordinal int
	value   *literal.Literal
}

var _ backends.DeviceMemory = &Memory{}

// Ordinal implements backends.DeviceMemory.
func (m *Memory) Ordinal() int { return m.ordinal }

// Shape implements backends.DeviceMemory.
func (m *Memory) Shape() shapes.Shape { return m.value.Shape() }

// Size implements backends.DeviceMemory.
func (m *Memory) Size() uintptr { return m.value.Shape().Memory() }

// String implements fmt.Stringer.
func (m *Memory) String() string {
	return fmt.Sprintf("interpreter.Memory{device=%d, shape=%s}", m.ordinal, m.value.Shape())
}

// Executor implements backends.StreamExecutor for one simulated device.
type Executor struct {
	backend *Backend
	ordinal int

	mu             sync.Mutex
	allocated      map[*Memory]struct{}
	allocatedBytes uint64
}

var _ backends.StreamExecutor = &Executor{}

func newExecutor(backend *Backend, ordinal int) *Executor {
	return &Executor{
		backend:   backend,
		ordinal:   ordinal,
		allocated: make(map[*Memory]struct{}),
	}
}

// Ordinal implements backends.StreamExecutor.
func (e *Executor) Ordinal() int { return e.ordinal }

// register takes ownership of the value as memory of the device.
func (e *Executor) register(value *literal.Literal) *Memory {
	m := &Memory{ordinal: e.ordinal, value: value}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allocated[m] = struct{}{}
	e.allocatedBytes += uint64(m.Size())
	klog.V(3).Infof("device #%d: allocated %s (%s), total %s", e.ordinal, value.Shape(),
		humanize.Bytes(uint64(m.Size())), humanize.Bytes(e.allocatedBytes))
	return m
}

// memoryOf checks that the backends.DeviceMemory is live memory of this device.
func (e *Executor) memoryOf(memory backends.DeviceMemory) (*Memory, error) {
	m, ok := memory.(*Memory)
	if !ok {
		return nil, status.InvalidArgumentf("memory %v was not allocated by the interpreter backend", memory)
	}
	if m.ordinal != e.ordinal {
		return nil, status.InvalidArgumentf("memory %v is on device #%d, but device #%d was requested",
			m, m.ordinal, e.ordinal)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, found := e.allocated[m]; !found {
		return nil, status.FailedPreconditionf("memory %v is not allocated (deallocated or device reset)", m)
	}
	return m, nil
}

// Allocate implements backends.StreamExecutor: the memory is zero initialized.
func (e *Executor) Allocate(shape shapes.Shape) (backends.DeviceMemory, error) {
	if err := shape.Validate(); err != nil {
		return nil, status.InvalidArgumentf("cannot allocate invalid shape %s: %v", shape, err)
	}
	return e.register(literal.New(shape)), nil
}

// Deallocate implements backends.StreamExecutor.
func (e *Executor) Deallocate(memory backends.DeviceMemory) error {
	m, err := e.memoryOf(memory)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.allocated, m)
	e.allocatedBytes -= uint64(m.Size())
	return nil
}

// AllocatedBytes returns the total memory currently allocated in the device.
func (e *Executor) AllocatedBytes() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocatedBytes
}

// NewStream implements backends.StreamExecutor.
func (e *Executor) NewStream() (backends.Stream, error) {
	if e.backend.finalized.Load() {
		return nil, status.FailedPreconditionf("interpreter backend already finalized")
	}
	return &Stream{executor: e}, nil
}

// Reset implements backends.StreamExecutor: all memory of the device is freed.
func (e *Executor) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	klog.V(1).Infof("device #%d reset, freeing %d allocations (%s)", e.ordinal, len(e.allocated),
		humanize.Bytes(e.allocatedBytes))
	e.allocated = make(map[*Memory]struct{})
	e.allocatedBytes = 0
	return nil
}

// Stream implements backends.Stream: work is run in order by the backend's pool of workers.
type Stream struct {
	executor *Executor

	mu   sync.Mutex
	last *xsync.Latch // Triggered when the last enqueued work finishes.
	err  error
}

var _ backends.Stream = &Stream{}

// Ordinal implements backends.Stream.
func (s *Stream) Ordinal() int { return s.executor.ordinal }

// Enqueue implements backends.Stream. It may block while the pool of workers is saturated.
func (s *Stream) Enqueue(work func() error) {
	s.mu.Lock()
	previous := s.last
	done := xsync.NewLatch()
	s.last = done
	s.mu.Unlock()

	pool := s.executor.backend.pool
	pool.WaitToStart(func() {
		defer done.Trigger()
		if previous != nil && !previous.Test() {
			pool.Sleep(previous.Wait)
		}
		if err := work(); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
	})
}

// BlockHostUntilDone implements backends.Stream.
func (s *Stream) BlockHostUntilDone() error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		last.Wait()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}
