// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/status"
)

// TransferManager implements backends.TransferManager: transfers are copies of the literals.
type TransferManager struct {
	backend *Backend
}

var _ backends.TransferManager = &TransferManager{}

// TransferLiteralToDevice implements backends.TransferManager.
func (t *TransferManager) TransferLiteralToDevice(executor backends.StreamExecutor, value *literal.Literal) (
	backends.DeviceMemory, error) {
	e, err := t.backend.executorOf(executor)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, status.InvalidArgumentf("cannot transfer nil literal to device #%d", e.ordinal)
	}
	return e.register(value.Clone()), nil
}

// TransferLiteralFromDevice implements backends.TransferManager.
func (t *TransferManager) TransferLiteralFromDevice(executor backends.StreamExecutor, memory backends.DeviceMemory) (
	*literal.Literal, error) {
	e, err := t.backend.executorOf(executor)
	if err != nil {
		return nil, err
	}
	m, err := e.memoryOf(memory)
	if err != nil {
		return nil, err
	}
	return m.value.Clone(), nil
}

// TupleElements implements backends.TransferManager. The elements are new allocations in the same device.
func (t *TransferManager) TupleElements(executor backends.StreamExecutor, memory backends.DeviceMemory) (
	[]backends.DeviceMemory, error) {
	e, err := t.backend.executorOf(executor)
	if err != nil {
		return nil, err
	}
	m, err := e.memoryOf(memory)
	if err != nil {
		return nil, err
	}
	if !m.value.IsTuple() {
		return nil, status.InvalidArgumentf("memory %v is not a tuple", m)
	}
	elements := make([]backends.DeviceMemory, 0, m.value.Shape().TupleSize())
	for _, element := range m.value.TupleElements() {
		elements = append(elements, e.register(element.Clone()))
	}
	return elements, nil
}
