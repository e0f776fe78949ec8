// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"strings"

	"github.com/gomlx/hlo/types/shapes"
)

// ComputationLayout holds the shapes, with layouts, of the parameters and result of the entry computation
// of a Module.
//
// A ResultShape without a layout means the compiler is free to choose one: compilers may fill it in.
type ComputationLayout struct {
	ParameterShapes []shapes.Shape
	ResultShape     shapes.Shape
}

// ResultLayoutIsSet returns whether the result shape has a layout set.
func (cl ComputationLayout) ResultLayoutIsSet() bool {
	return cl.ResultShape.HasLayout()
}

// SetToDefaultLayout sets the row-major default layout to all parameters and result shapes that don't have one.
func (cl *ComputationLayout) SetToDefaultLayout() {
	for ii, shape := range cl.ParameterShapes {
		cl.ParameterShapes[ii] = withDefaultLayout(shape)
	}
	cl.ResultShape = withDefaultLayout(cl.ResultShape)
}

func withDefaultLayout(shape shapes.Shape) shapes.Shape {
	if shape.IsTuple() {
		shape = shape.Clone()
		for ii, element := range shape.TupleShapes {
			shape.TupleShapes[ii] = withDefaultLayout(element)
		}
		return shape
	}
	if !shape.IsArray() || shape.Layout != nil {
		return shape
	}
	return shape.WithLayout(shapes.DefaultLayout(shape.Rank()))
}

// DebugOptions are knobs used for debugging and testing backends.
type DebugOptions struct {
	// FastMath allows compilers to use approximations.
	FastMath bool

	// EliminateImplicitBroadcast asks compilers to rewrite implicit broadcasts as explicit Broadcast instructions.
	EliminateImplicitBroadcast bool

	// DumpExecutionsTo, if set, is the directory where session snapshots of each execution are written.
	DumpExecutionsTo string
}

// ModuleConfig configures the compilation of a Module.
type ModuleConfig struct {
	EntryComputationLayout ComputationLayout
	ReplicaCount           int
	Seed                   int64
	DebugOptions           DebugOptions
}

// NewModuleConfig returns a configuration for a module whose entry computation has the given program shape,
// with the layouts not set and a replica count of 1.
func NewModuleConfig(programShape ProgramShape) *ModuleConfig {
	config := &ModuleConfig{
		ReplicaCount: 1,
	}
	config.EntryComputationLayout.ParameterShapes = make([]shapes.Shape, len(programShape.Parameters))
	for ii, shape := range programShape.Parameters {
		config.EntryComputationLayout.ParameterShapes[ii] = shape.Clone()
	}
	config.EntryComputationLayout.ResultShape = programShape.Result.WithoutLayout()
	return config
}

// Clone returns a deep copy of the configuration.
func (c *ModuleConfig) Clone() *ModuleConfig {
	c2 := *c
	c2.EntryComputationLayout.ParameterShapes = make([]shapes.Shape, len(c.EntryComputationLayout.ParameterShapes))
	for ii, shape := range c.EntryComputationLayout.ParameterShapes {
		c2.EntryComputationLayout.ParameterShapes[ii] = shape.Clone()
	}
	c2.EntryComputationLayout.ResultShape = c.EntryComputationLayout.ResultShape.Clone()
	return &c2
}

// Key returns a fingerprint of the configuration: two configurations with the same key compile to
// interchangeable executables. Every field contributes to it.
func (c *ModuleConfig) Key() string {
	var sb strings.Builder
	sb.WriteString("entry_layout=(")
	for ii, shape := range c.EntryComputationLayout.ParameterShapes {
		if ii > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(shapeKey(shape))
	}
	fmt.Fprintf(&sb, ")->%s", shapeKey(c.EntryComputationLayout.ResultShape))
	fmt.Fprintf(&sb, "::replica_count=%d::seed=%d", c.ReplicaCount, c.Seed)
	fmt.Fprintf(&sb, "::fast_math=%t::eliminate_implicit_broadcast=%t::dump_to=%q",
		c.DebugOptions.FastMath, c.DebugOptions.EliminateImplicitBroadcast, c.DebugOptions.DumpExecutionsTo)
	return sb.String()
}

// shapeKey renders the shape always including the layout, or "{}" if it is not set.
func shapeKey(shape shapes.Shape) string {
	if shape.IsTuple() {
		parts := make([]string, len(shape.TupleShapes))
		for ii, element := range shape.TupleShapes {
			parts[ii] = shapeKey(element)
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	layout := "{}"
	if shape.Layout != nil {
		layout = shape.Layout.String()
	}
	return fmt.Sprintf("%s%v%s", shape.DType, shape.Dimensions, layout)
}

// Equal returns whether the two configurations are the same.
func (c *ModuleConfig) Equal(c2 *ModuleConfig) bool {
	if c == nil || c2 == nil {
		return c == c2
	}
	return c.Key() == c2.Key()
}
