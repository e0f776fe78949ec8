// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, limiting how many run at the same time.
//
// The interpreter backend uses it to run the work enqueued on its device streams and to compile batches
// of modules.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool of workers with a soft limit on the number of tasks running in parallel.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// 0 means no parallelism (tasks are run inline), and a negative value means unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int

	// sleeping is the number of running tasks waiting on other tasks: they don't count towards the limit.
	sleeping atomic.Int32
}

// New returns a new Pool with the given maximum parallelism.
// If maxParallelism is 0 tasks are run inline by the caller, and if negative parallelism is unlimited.
func New(maxParallelism int) *Pool {
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// NewDefault returns a new Pool with parallelism runtime.NumCPU().
func NewDefault() *Pool {
	return New(runtime.NumCPU())
}

// MaxParallelism returns the soft limit of tasks running in parallel.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// NumRunning returns the number of tasks currently running (including the sleeping ones).
func (p *Pool) NumRunning() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numRunning
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	} else if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism+int(p.sleeping.Load())
}

// WaitToStart waits until there is a worker available and starts the task in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	} else if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.lockedRunTaskInGoroutine(task)
}

// StartIfAvailable runs the task in a separate goroutine, if there are workers available.
// It returns true if it started the task, false otherwise.
func (p *Pool) StartIfAvailable(task func()) bool {
	if p.maxParallelism < 0 {
		go task()
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockedIsFull() {
		return false
	}
	p.lockedRunTaskInGoroutine(task)
	return true
}

// lockedRunTaskInGoroutine starts the task and keeps tabs on the number of tasks running.
//
// It must be called with Pool.mu acquired.
func (p *Pool) lockedRunTaskInGoroutine(task func()) {
	p.numRunning++
	go func() {
		defer func() {
			p.mu.Lock()
			p.numRunning--
			p.cond.Signal()
			p.mu.Unlock()
		}()
		task()
	}()
}

// Sleep is called by a running task that is going to block on wait (usually waiting for another task of the
// pool). While it blocks, it doesn't count towards the parallelism limit, so it cannot starve the task it is
// waiting for.
func (p *Pool) Sleep(wait func()) {
	p.sleeping.Add(1)
	p.mu.Lock()
	p.cond.Signal()
	p.mu.Unlock()
	defer p.sleeping.Add(-1)
	wait()
}
