// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/backends"
	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/service/computation"
)

// CompilationCache holds the executables compiled, keyed by the versioned computation and the module
// configuration it was compiled with.
//
// It is safe for concurrent use: concurrent misses of the same key share one compilation.
type CompilationCache struct {
	mu          sync.Mutex
	executables map[string]backends.Executable
	group       singleflight.Group
}

// NewCompilationCache returns an empty cache.
func NewCompilationCache() *CompilationCache {
	return &CompilationCache{executables: make(map[string]backends.Executable)}
}

// cacheKey must be computed from the configuration before compilation: compilers may fill in the layouts.
func cacheKey(vh computation.VersionedHandle, config *hlo.ModuleConfig) string {
	return vh.String() + "::" + config.Key()
}

// Lookup returns the executable compiled for the versioned computation and configuration, if any.
func (c *CompilationCache) Lookup(vh computation.VersionedHandle, config *hlo.ModuleConfig) (backends.Executable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.executables[cacheKey(vh, config)]
	return e, found
}

// Insert the executable compiled for the versioned computation and configuration. The configuration must
// be the one before compilation.
func (c *CompilationCache) Insert(vh computation.VersionedHandle, config *hlo.ModuleConfig, executable backends.Executable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executables[cacheKey(vh, config)] = executable
}

// Len returns the number of executables cached.
func (c *CompilationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.executables)
}

// GetOrCompile returns the cached executable, or compiles it with compile and caches it. compile is given
// a copy of config, which it may modify. Failed compilations are not cached.
//
// It returns whether it was a cache hit, and the time spent compiling otherwise.
func (c *CompilationCache) GetOrCompile(vh computation.VersionedHandle, config *hlo.ModuleConfig,
	compile func(config *hlo.ModuleConfig) (backends.Executable, error)) (
	executable backends.Executable, hit bool, compileTime time.Duration, err error) {
	if executable, found := c.Lookup(vh, config); found {
		compilationCacheRequests.WithLabelValues("hit").Inc()
		return executable, true, 0, nil
	}
	key := cacheKey(vh, config)
	var compiled bool
	value, err, _ := c.group.Do(key, func() (any, error) {
		if executable, found := c.Lookup(vh, config); found {
			return executable, nil
		}
		start := time.Now()
		executable, err := compile(config.Clone())
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)
		compileDuration.Observe(elapsed.Seconds())
		compileTime = elapsed
		compiled = true
		c.Insert(vh, config, executable)
		klog.V(1).Infof("compiled %s in %s", vh, elapsed)
		return executable, nil
	})
	if err != nil {
		return nil, false, 0, err
	}
	if !compiled {
		// Another caller compiled it.
		compilationCacheRequests.WithLabelValues("hit").Inc()
		return value.(backends.Executable), true, 0, nil
	}
	compilationCacheRequests.WithLabelValues("miss").Inc()
	return value.(backends.Executable), false, compileTime, nil
}
