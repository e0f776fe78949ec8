// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"time"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
)

// DeviceMemory is an opaque reference to a value stored in the memory of one device.
type DeviceMemory interface {
	// Ordinal of the device holding the memory.
	Ordinal() int

	// Shape of the value stored.
	Shape() shapes.Shape

	// Size in bytes used in the device.
	Size() uintptr
}

// StreamExecutor manages one device: its memory and its streams.
type StreamExecutor interface {
	// Ordinal of the device.
	Ordinal() int

	// Allocate uninitialized (or zeroed) memory for a value of the given shape.
	Allocate(shape shapes.Shape) (DeviceMemory, error)

	// Deallocate frees the memory. It is an error to deallocate memory of another device, or to deallocate twice.
	Deallocate(memory DeviceMemory) error

	// NewStream creates a new stream to run work on the device.
	NewStream() (Stream, error)

	// Reset the device, freeing all its memory.
	Reset() error
}

// Stream runs work on a device in the order it was enqueued.
type Stream interface {
	// Ordinal of the device the stream runs on.
	Ordinal() int

	// Enqueue work to be run after all previously enqueued work has finished. It returns immediately.
	Enqueue(work func() error)

	// BlockHostUntilDone blocks until all the work enqueued so far has finished, and returns the first error
	// returned by the work since the last call to BlockHostUntilDone.
	BlockHostUntilDone() error
}

// TransferManager moves literals to and from device memory.
type TransferManager interface {
	// TransferLiteralToDevice allocates memory on the executor's device and copies the literal to it.
	TransferLiteralToDevice(executor StreamExecutor, value *literal.Literal) (DeviceMemory, error)

	// TransferLiteralFromDevice copies the value in memory to a new literal.
	TransferLiteralFromDevice(executor StreamExecutor, memory DeviceMemory) (*literal.Literal, error)

	// TupleElements returns the memory of each element of a tuple stored in the device.
	TupleElements(executor StreamExecutor, memory DeviceMemory) ([]DeviceMemory, error)
}

// Compiler compiles modules into executables.
type Compiler interface {
	// Compile the module to run on the executor's device.
	Compile(module *hlo.Module, executor StreamExecutor) (Executable, error)

	// CompileBatch compiles modules[i] to run on executors[i] for each i, and returns the executables in the
	// same order.
	CompileBatch(modules []*hlo.Module, executors []StreamExecutor) ([]Executable, error)
}

// Executable is a compiled module that can be run on a stream.
type Executable interface {
	// Module compiled. It must not be modified.
	Module() *hlo.Module

	// ResultShape is the shape of the value returned by ExecuteOnStream.
	ResultShape() shapes.Shape

	// ExecuteOnStream runs the executable synchronously with the given arguments, which must reside on the
	// device of run.Stream. The result is allocated in the same device.
	ExecuteOnStream(run *RunOptions, args []DeviceMemory) (DeviceMemory, *ExecutionProfile, error)
}

// RunOptions configures one execution of an Executable.
type RunOptions struct {
	// Stream the executable is running on.
	Stream Stream

	// Executor of the device of Stream.
	Executor StreamExecutor

	// DeviceAssignment of all replicas, if running with more than one replica.
	DeviceAssignment *DeviceAssignment

	// Seed for random number generation.
	Seed int64
}

// ExecutionProfile is returned by each execution.
type ExecutionProfile struct {
	// CompilationCacheHit is set by the service when the executable was found in the compilation cache.
	CompilationCacheHit bool

	// CompileTime it took to compile the executable, zero if it was a cache hit.
	CompileTime time.Duration

	// ComputeTime is the wall time of the execution on the device.
	ComputeTime time.Duration
}
