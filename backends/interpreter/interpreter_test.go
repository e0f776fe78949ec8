// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"sync"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

func buildAddModule(t *testing.T) *hlo.Module {
	vec := shapes.Make(shapes.F32, 3)
	b := hlo.NewBuilder("add")
	x := b.Parameter(0, vec, "x")
	y := b.Parameter(1, vec, "y")
	b.Binary(hlo.OpcodeAdd, vec, x, y)
	comp := must.M1(b.Build())
	module, err := hlo.NewModule("add_module", comp, hlo.NewModuleConfig(comp.ProgramShape()))
	require.NoError(t, err)
	return module
}

func TestNew(t *testing.T) {
	backend, err := New("devices=3,parallelism=2")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.DeviceCount())
	assert.True(t, backend.DeviceOrdinalSupported(2))
	assert.False(t, backend.DeviceOrdinalSupported(3))
	_, err = backend.Executor(3)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	for _, config := range []string{"devices=0", "devices", "foo=1", "devices=x"} {
		_, err = New(config)
		assert.Error(t, err, "config %q", config)
	}

	backend, err = backends.NewWithConfig("interpreter:devices=2")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.DeviceCount())
	assert.Contains(t, backends.List(), BackendName)
}

func TestTransfer(t *testing.T) {
	backend := must.M1(New("devices=2"))
	executor := must.M1(backend.Executor(1))
	value := literal.Matrix([][]int32{{1, 2}, {3, 4}})
	memory, err := backend.TransferManager().TransferLiteralToDevice(executor, value)
	require.NoError(t, err)
	assert.Equal(t, 1, memory.Ordinal())
	assert.Equal(t, uintptr(16), memory.Size())
	assert.Equal(t, uint64(16), executor.(*Executor).AllocatedBytes())

	back, err := backend.TransferManager().TransferLiteralFromDevice(executor, memory)
	require.NoError(t, err)
	assert.True(t, value.Equal(back))

	// Reading from the wrong device fails.
	other := must.M1(backend.Executor(0))
	_, err = backend.TransferManager().TransferLiteralFromDevice(other, memory)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Tuples.
	tuple := literal.NewTuple(literal.Scalar(float32(1)), value)
	tupleMemory := must.M1(backend.TransferManager().TransferLiteralToDevice(executor, tuple))
	elements, err := backend.TransferManager().TupleElements(executor, tupleMemory)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.True(t, value.Equal(must.M1(backend.TransferManager().TransferLiteralFromDevice(executor, elements[1]))))
	_, err = backend.TransferManager().TupleElements(executor, memory)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// Deallocation.
	require.NoError(t, executor.Deallocate(memory))
	_, err = backend.TransferManager().TransferLiteralFromDevice(executor, memory)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	require.NoError(t, executor.Reset())
	assert.Equal(t, uint64(0), executor.(*Executor).AllocatedBytes())
}

func TestStreamOrder(t *testing.T) {
	backend := must.M1(New("parallelism=4"))
	stream := must.M1(must.M1(backend.Executor(0)).NewStream())
	var mu sync.Mutex
	var order []int
	for ii := range 20 {
		stream.Enqueue(func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, ii)
			return nil
		})
	}
	require.NoError(t, stream.BlockHostUntilDone())
	require.Len(t, order, 20)
	for ii, got := range order {
		assert.Equal(t, ii, got)
	}

	stream.Enqueue(func() error { return status.Internalf("device failure") })
	stream.Enqueue(func() error { return nil })
	err := stream.BlockHostUntilDone()
	assert.Equal(t, codes.Internal, status.Code(err))
	// The error is reported only once.
	assert.NoError(t, stream.BlockHostUntilDone())
}

func TestCompileAndExecute(t *testing.T) {
	backend := must.M1(New("devices=2"))
	executor := must.M1(backend.Executor(0))
	module := buildAddModule(t)
	assert.False(t, module.Config().EntryComputationLayout.ResultLayoutIsSet())
	executable, err := backend.Compiler().Compile(module, executor)
	require.NoError(t, err)
	assert.True(t, module.Config().EntryComputationLayout.ResultLayoutIsSet())

	transfer := backend.TransferManager()
	x := must.M1(transfer.TransferLiteralToDevice(executor, literal.Vector([]float32{1, 2, 3})))
	y := must.M1(transfer.TransferLiteralToDevice(executor, literal.Vector([]float32{10, 20, 30})))
	stream := must.M1(executor.NewStream())
	run := &backends.RunOptions{Stream: stream, Executor: executor}
	result, profile, err := executable.ExecuteOnStream(run, []backends.DeviceMemory{x, y})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, []float32{11, 22, 33}, literal.Data[float32](must.M1(transfer.TransferLiteralFromDevice(executor, result))))

	// Arguments in another device.
	otherExecutor := must.M1(backend.Executor(1))
	z := must.M1(transfer.TransferLiteralToDevice(otherExecutor, literal.Vector([]float32{1, 1, 1})))
	_, _, err = executable.ExecuteOnStream(run, []backends.DeviceMemory{x, z})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.ErrorContains(t, err, "device mismatch")

	// Batch compilation.
	executables, err := backend.Compiler().CompileBatch(
		[]*hlo.Module{buildAddModule(t), buildAddModule(t)},
		[]backends.StreamExecutor{executor, otherExecutor})
	require.NoError(t, err)
	require.Len(t, executables, 2)
}

func TestCompileErrors(t *testing.T) {
	backend := must.M1(New(""))
	executor := must.M1(backend.Executor(0))

	b := hlo.NewBuilder("custom")
	x := b.Parameter(0, shapes.Scalar(shapes.F32), "x")
	b.CustomCall(shapes.Scalar(shapes.F32), "my_target", x)
	comp := must.M1(b.Build())
	_, err := backend.Compiler().Compile(must.M1(hlo.NewModule("custom", comp, nil)), executor)
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	b = hlo.NewBuilder("wrong_shape")
	x = b.Parameter(0, shapes.Make(shapes.F32, 2), "x")
	b.Binary(hlo.OpcodeAdd, shapes.Make(shapes.F64, 2), x, x)
	comp = must.M1(b.Build())
	_, err = backend.Compiler().Compile(must.M1(hlo.NewModule("wrong_shape", comp, nil)), executor)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
