// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// DeviceHandle selects the devices a computation runs on: with R replicas, replica r of the computation
// runs on the device given by the backends.ComputationPlacer for (r, Handle), out of DeviceCount
// computations. Device handles are created by GetDeviceHandles.
type DeviceHandle struct {
	Handle      int
	DeviceCount int
}

// singleComputationDevice is used when no device handle is given.
var singleComputationDevice = DeviceHandle{Handle: 0, DeviceCount: 1}

// GetDeviceHandles returns deviceCount device handles, each for a computation running with the configured
// number of replicas.
func (s *Service) GetDeviceHandles(deviceCount int) ([]DeviceHandle, error) {
	replicaCount := s.opts.NumberOfReplicas
	if replicaCount <= 0 {
		return nil, status.FailedPreconditionf("replica count must be a positive integer, got %d", replicaCount)
	}
	if deviceCount <= 0 {
		return nil, status.InvalidArgumentf("device count must be a positive integer, got %d", deviceCount)
	}
	if available := s.backend.DeviceCount(); deviceCount*replicaCount > available {
		return nil, status.ResourceExhaustedf("requested %d device handles with %d replicas each, but only %d devices are available",
			deviceCount, replicaCount, available)
	}
	handles := make([]DeviceHandle, deviceCount)
	for ii := range handles {
		handles[ii] = DeviceHandle{Handle: ii, DeviceCount: deviceCount}
	}
	return handles, nil
}

// replicaExecutors returns the executors of the devices running each replica of the computation with
// the given device handle.
func (s *Service) replicaExecutors(handle DeviceHandle) ([]backends.StreamExecutor, error) {
	replicaCount := s.opts.NumberOfReplicas
	executors := make([]backends.StreamExecutor, replicaCount)
	for replica := range executors {
		ordinal, err := s.placer.DeviceID(replica, handle.Handle, replicaCount, handle.DeviceCount)
		if err != nil {
			return nil, err
		}
		if !s.backend.DeviceOrdinalSupported(ordinal) {
			return nil, status.ResourceExhaustedf("replica %d of device handle %+v needs device #%d, but backend %s has %d devices",
				replica, handle, ordinal, s.backend.Name(), s.backend.DeviceCount())
		}
		executors[replica], err = s.backend.Executor(ordinal)
		if err != nil {
			return nil, err
		}
	}
	return executors, nil
}

// TransferToServer copies the value to the devices of every replica of the default device handle, and
// returns the handle to it.
func (s *Service) TransferToServer(value *literal.Literal) (DataHandle, error) {
	return s.TransferToServerOnDevice(value, singleComputationDevice)
}

// TransferToServerOnDevice copies the value to the devices of every replica of the given device handle,
// and returns the handle to it. Values can only be used by computations executed on the same devices.
func (s *Service) TransferToServerOnDevice(value *literal.Literal, device DeviceHandle) (DataHandle, error) {
	executors, err := s.replicaExecutors(device)
	if err != nil {
		return 0, err
	}
	if value.IsTuple() && len(executors) > 1 {
		return 0, status.Unimplementedf("transferring tuple %s to %d replicas is not implemented",
			value.Shape(), len(executors))
	}
	memories := make([]backends.DeviceMemory, 0, len(executors))
	for _, executor := range executors {
		memory, err := s.backend.TransferManager().TransferLiteralToDevice(executor, value)
		if err != nil {
			s.deallocate(memories)
			return 0, errors.WithMessagef(err, "transferring %s to device #%d", value.Shape(), executor.Ordinal())
		}
		memories = append(memories, memory)
	}
	return s.allocations.Register(memories,
		fmt.Sprintf("transfer to server (%s)", humanize.Bytes(uint64(value.Shape().Memory()))))
}

// TransferToClient copies the value back from the device of the first replica. If shapeWithLayout is
// given, the value is returned in its layout: it must have a layout, and the same dimensions as the value.
func (s *Service) TransferToClient(handle DataHandle, shapeWithLayout *shapes.Shape) (*literal.Literal, error) {
	a, err := s.allocations.Resolve(handle)
	if err != nil {
		return nil, err
	}
	if shapeWithLayout != nil {
		if !shapeWithLayout.HasLayout() {
			return nil, status.InvalidArgumentf("TransferToClient of data handle %d: shape %s given without a layout",
				handle, *shapeWithLayout)
		}
		if !shapeWithLayout.Equal(a.Shape()) {
			return nil, status.InvalidArgumentf("TransferToClient of data handle %d: shape %s given, but value has shape %s",
				handle, *shapeWithLayout, a.Shape())
		}
	}
	executor, err := s.backend.Executor(a.Primary().Ordinal())
	if err != nil {
		return nil, err
	}
	value, err := s.backend.TransferManager().TransferLiteralFromDevice(executor, a.Primary())
	if err != nil {
		return nil, errors.WithMessagef(err, "transferring %s to client", a)
	}
	if shapeWithLayout != nil {
		value, err = value.RelayoutShape(*shapeWithLayout)
		if err != nil {
			return nil, status.InvalidArgumentf("TransferToClient of data handle %d: %v", handle, err)
		}
	}
	return value, nil
}

// GetShape returns the shape of the value.
func (s *Service) GetShape(handle DataHandle) (shapes.Shape, error) {
	a, err := s.allocations.Resolve(handle)
	if err != nil {
		return shapes.Invalid(), err
	}
	return a.Shape(), nil
}

// Unregister frees the value.
func (s *Service) Unregister(handle DataHandle) error {
	return s.allocations.Unregister(handle)
}

// DeconstructTuple returns new handles for each element of the tuple value.
func (s *Service) DeconstructTuple(handle DataHandle) ([]DataHandle, error) {
	return s.allocations.DeconstructTuple(handle)
}

// ResetDevice resets all devices: values stored in them are lost, and their handles can no longer be used.
// Asynchronous executions not waited for yet are forgotten.
func (s *Service) ResetDevice() error {
	droppedValues := s.allocations.Reset()
	droppedExecutions := s.executions.Reset()
	for ordinal := range s.backend.DeviceCount() {
		executor, err := s.backend.Executor(ordinal)
		if err != nil {
			return err
		}
		if err = executor.Reset(); err != nil {
			return errors.WithMessagef(err, "resetting device #%d", ordinal)
		}
		s.streams.Reset(ordinal)
	}
	klog.V(1).Infof("reset %d devices: dropped %d values and %d pending executions",
		s.backend.DeviceCount(), droppedValues, droppedExecutions)
	return nil
}

// deallocate frees memory that was not registered, logging any failure.
func (s *Service) deallocate(memories []backends.DeviceMemory) {
	for _, memory := range memories {
		if memory == nil {
			continue
		}
		executor, err := s.backend.Executor(memory.Ordinal())
		if err == nil {
			err = executor.Deallocate(memory)
		}
		if err != nil {
			klog.Warningf("failed to free memory on device #%d: %v", memory.Ordinal(), err)
		}
	}
}
