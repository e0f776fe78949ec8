// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/hlo"
	"github.com/gomlx/hlo/hlo/evaluator"
	"github.com/gomlx/hlo/service/computation"
	"github.com/gomlx/hlo/types/literal"
	"github.com/gomlx/hlo/types/shapes"
	"github.com/gomlx/hlo/types/status"
)

// ComputeConstant evaluates the instruction of the computation, which must not depend on any parameter.
// It is evaluated in the host, without compiling or using any device.
//
// If layout is given, the result is returned in that layout.
func (s *Service) ComputeConstant(ctx context.Context, handle computation.Handle, id hlo.InstructionID,
	layout *shapes.Layout) (value *literal.Literal, err error) {
	klog.V(1).Infof("running compute-constant request")
	_, span := tracer.Start(ctx, "Service.ComputeConstant", trace.WithAttributes(
		attribute.Int64("computation_handle", int64(handle)), attribute.Int("instruction", int(id))))
	defer func() { endSpan(span, err) }()

	uc, err := s.computations.Resolve(handle)
	if err != nil {
		return nil, err
	}
	c, err := uc.BuildConstant(id, s.computations.Build)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	value, err = evaluator.New().Evaluate(c)
	if err != nil {
		return nil, errors.WithMessagef(err, "computing constant %d of %q", id, uc.Name())
	}
	executionDuration.WithLabelValues("constant").Observe(time.Since(start).Seconds())
	if layout != nil {
		if err = shapes.ValidateLayout(*layout, value.Shape()); err != nil {
			return nil, status.InvalidArgumentf("computing constant %d of %q: %v", id, uc.Name(), err)
		}
		value, err = value.Relayout(*layout)
		if err != nil {
			return nil, status.InvalidArgumentf("computing constant %d of %q: %v", id, uc.Name(), err)
		}
	}
	klog.V(1).Infof("successfully completed 'compute-constant' request")
	return value, nil
}
