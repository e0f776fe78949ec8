// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("github.com/gomlx/hlo/service")

	compilationCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlo_compilation_cache_requests_total",
		Help: "Compilation cache lookups by result (hit or miss).",
	}, []string{"result"})

	compileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hlo_compile_duration_seconds",
		Help:    "Time spent compiling modules.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlo_execution_duration_seconds",
		Help:    "Wall time of executions, by kind (execute, parallel, async, constant).",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"})
)
