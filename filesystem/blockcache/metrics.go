// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlo_block_cache_hits_total",
		Help: "Blocks served from the block cache.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlo_block_cache_misses_total",
		Help: "Blocks fetched because they were not cached.",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlo_block_cache_evictions_total",
		Help: "Blocks evicted by LRU trimming, staleness or explicit removal.",
	})

	cachedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlo_block_cache_bytes",
		Help: "Bytes held by all block caches.",
	})
)
