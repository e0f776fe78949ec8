// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package interpreter implements a backends.Backend that runs modules with the reference evaluator
// (package hlo/evaluator). Devices are simulated: device memory is a literal.Literal held in host memory,
// and each device can have any number of streams, whose work is run by a shared pool of workers.
//
// It is registered as "interpreter", and it's useful for testing and as a reference for other backends.
package interpreter

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/internal/workerspool"
	"github.com/gomlx/hlo/types/status"
)

// BackendName to be used in HLO_BACKEND to specify this backend.
const BackendName = "interpreter"

// Registers New as the constructor for the "interpreter" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new interpreter Backend.
//
// The config is a comma-separated list of options:
//
//   - "devices=<n>": number of simulated devices, default is 1.
//   - "parallelism=<n>": maximum number of stream work items running in parallel; 0 runs them inline,
//     and -1 means unlimited. Default is runtime.NumCPU().
func New(config string) (backends.Backend, error) {
	numDevices := 1
	pool := workerspool.NewDefault()
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, found := strings.Cut(option, "=")
		if !found {
			return nil, status.InvalidArgumentf("invalid interpreter backend option %q, expected <key>=<value>", option)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, status.InvalidArgumentf("invalid value for interpreter backend option %q: %v", option, err)
		}
		switch key {
		case "devices":
			if n <= 0 {
				return nil, status.InvalidArgumentf("interpreter backend needs at least one device, got %q", option)
			}
			numDevices = n
		case "parallelism":
			pool = workerspool.New(n)
		default:
			return nil, status.InvalidArgumentf("unknown interpreter backend option %q", option)
		}
	}
	return newBackend(numDevices, pool), nil
}

func newBackend(numDevices int, pool *workerspool.Pool) *Backend {
	b := &Backend{pool: pool}
	b.executors = make([]*Executor, numDevices)
	for ordinal := range numDevices {
		b.executors[ordinal] = newExecutor(b, ordinal)
	}
	b.compiler = &Compiler{backend: b}
	b.transfer = &TransferManager{backend: b}
	klog.V(1).Infof("interpreter backend created with %d devices, parallelism %d", numDevices, pool.MaxParallelism())
	return b
}

// Backend implements the backends.Backend interface.
type Backend struct {
	executors []*Executor
	pool      *workerspool.Pool
	compiler  *Compiler
	transfer  *TransferManager
	finalized atomic.Bool
}

// Compile-time check that interpreter.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Reference interpreter of hlo modules (" + strconv.Itoa(len(b.executors)) + " simulated devices)"
}

// DeviceCount returns the number of simulated devices.
func (b *Backend) DeviceCount() int { return len(b.executors) }

// DeviceOrdinalSupported returns whether the ordinal refers to one of the simulated devices.
func (b *Backend) DeviceOrdinalSupported(ordinal int) bool {
	return ordinal >= 0 && ordinal < len(b.executors)
}

// Executor returns the StreamExecutor of the device with the given ordinal.
func (b *Backend) Executor(ordinal int) (backends.StreamExecutor, error) {
	if b.finalized.Load() {
		return nil, status.FailedPreconditionf("interpreter backend already finalized")
	}
	if !b.DeviceOrdinalSupported(ordinal) {
		return nil, status.InvalidArgumentf("device ordinal %d out of range, interpreter backend has %d devices",
			ordinal, len(b.executors))
	}
	return b.executors[ordinal], nil
}

// Compiler implements backends.Backend.
func (b *Backend) Compiler() backends.Compiler { return b.compiler }

// TransferManager implements backends.Backend.
func (b *Backend) TransferManager() backends.TransferManager { return b.transfer }

// Finalize releases the memory of all devices.
func (b *Backend) Finalize() {
	if b.finalized.Swap(true) {
		return
	}
	for _, executor := range b.executors {
		if err := executor.Reset(); err != nil {
			klog.Warningf("interpreter backend: failed to reset device #%d: %+v", executor.ordinal, err)
		}
	}
}

// executorOf checks that the backends.StreamExecutor is one of this backend's.
func (b *Backend) executorOf(executor backends.StreamExecutor) (*Executor, error) {
	e, ok := executor.(*Executor)
	if !ok || e.backend != b {
		return nil, errors.Errorf("executor %v doesn't belong to the interpreter backend", executor)
	}
	return e, nil
}
