// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/types/xsync"
)

// StreamPool lends streams of the devices of a backend, creating them on demand and reusing the returned ones.
//
// At most maxStreamsPerDevice streams of each device are lent at the same time: BorrowStream blocks while
// the device is at its limit.
type StreamPool struct {
	maxStreamsPerDevice int

	mu         sync.Mutex
	free       map[int][]Stream
	semaphores map[int]*xsync.Semaphore
}

// NewStreamPool returns a StreamPool that lends at most maxStreamsPerDevice streams of each device.
// If maxStreamsPerDevice <= 0 there is no limit.
func NewStreamPool(maxStreamsPerDevice int) *StreamPool {
	return &StreamPool{
		maxStreamsPerDevice: maxStreamsPerDevice,
		free:                make(map[int][]Stream),
		semaphores:          make(map[int]*xsync.Semaphore),
	}
}

func (p *StreamPool) semaphore(ordinal int) *xsync.Semaphore {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, found := p.semaphores[ordinal]
	if !found {
		s = xsync.NewSemaphore(p.maxStreamsPerDevice)
		p.semaphores[ordinal] = s
	}
	return s
}

// BorrowStream returns a stream of the executor's device. It must be given back with ReturnStream.
func (p *StreamPool) BorrowStream(executor StreamExecutor) (Stream, error) {
	ordinal := executor.Ordinal()
	p.semaphore(ordinal).Acquire()
	p.mu.Lock()
	if free := p.free[ordinal]; len(free) > 0 {
		stream := free[len(free)-1]
		p.free[ordinal] = free[:len(free)-1]
		p.mu.Unlock()
		return stream, nil
	}
	p.mu.Unlock()
	stream, err := executor.NewStream()
	if err != nil {
		p.semaphore(ordinal).Release()
		return nil, errors.WithMessagef(err, "failed to create stream for device #%d", ordinal)
	}
	klog.V(2).Infof("StreamPool: created new stream for device #%d", ordinal)
	return stream, nil
}

// ReturnStream gives back a stream borrowed with BorrowStream.
func (p *StreamPool) ReturnStream(stream Stream) {
	ordinal := stream.Ordinal()
	p.mu.Lock()
	p.free[ordinal] = append(p.free[ordinal], stream)
	p.mu.Unlock()
	p.semaphore(ordinal).Release()
}

// Reset drops all the free streams of the device with the given ordinal, for instance after the device is reset.
func (p *StreamPool) Reset(ordinal int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.free, ordinal)
}
