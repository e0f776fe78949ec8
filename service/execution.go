// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/types/status"
	"github.com/gomlx/hlo/types/xsync"
)

// ExecutionHandle identifies an execution started with Service.ExecuteAsync.
type ExecutionHandle uuid.UUID

// String implements fmt.Stringer.
func (h ExecutionHandle) String() string { return uuid.UUID(h).String() }

// ExecuteResult is the outcome of one execution.
type ExecuteResult struct {
	Output  DataHandle
	Profile *backends.ExecutionProfile
}

// execution is a running (or finished) asynchronous execution.
type execution struct {
	tag    string
	result *xsync.Future[ExecuteResult]
}

// ExecutionTracker keeps the asynchronous executions until they are waited for.
//
// It is safe for concurrent use.
type ExecutionTracker struct {
	mu         sync.Mutex
	executions map[ExecutionHandle]*execution
}

// NewExecutionTracker returns an empty tracker.
func NewExecutionTracker() *ExecutionTracker {
	return &ExecutionTracker{executions: make(map[ExecutionHandle]*execution)}
}

// Register an execution whose result will be given by the future.
func (t *ExecutionTracker) Register(tag string, result *xsync.Future[ExecuteResult]) ExecutionHandle {
	handle := ExecutionHandle(uuid.New())
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions[handle] = &execution{tag: tag, result: result}
	klog.V(2).Infof("registered execution %s: %s", handle, tag)
	return handle
}

// Wait blocks until the execution finishes, and returns its result. The execution is unregistered.
func (t *ExecutionTracker) Wait(handle ExecutionHandle) (ExecuteResult, error) {
	t.mu.Lock()
	e, found := t.executions[handle]
	t.mu.Unlock()
	if !found {
		return ExecuteResult{}, status.NotFoundf("execution %s not found", handle)
	}
	result, err := e.result.Wait()
	t.mu.Lock()
	delete(t.executions, handle)
	t.mu.Unlock()
	return result, err
}

// Reset drops all the executions not waited for yet, and returns how many there were.
// Goroutines already blocked in Wait still receive their results.
func (t *ExecutionTracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.executions)
	clear(t.executions)
	return n
}

// Len returns the number of executions not waited for yet.
func (t *ExecutionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.executions)
}
