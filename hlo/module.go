// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hlo defines the instruction graph of tensor computations: Opcode, Instruction, Computation and
// Module, plus a Builder to create computations.
//
// A Computation is an arena of instructions, where operands are referred to by InstructionID. A Module owns
// an entry computation plus all computations embedded in it (the scalar computations used by Reduce and Map,
// the condition and body of While loops, the targets of Call), and the ModuleConfig used to compile it.
//
// The graph is immutable once built: evaluation and compilation never change it.
package hlo

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Module is the unit of compilation: an entry computation, the computations embedded in it and its
// configuration.
type Module struct {
	name         string
	entry        *Computation
	computations []*Computation // Embedded computations first, entry last.
	config       *ModuleConfig
}

// NewModule returns a module with the given entry computation. The embedded computations are collected
// from the entry.
//
// If config is nil, a default one is created from the entry computation program shape.
func NewModule(name string, entry *Computation, config *ModuleConfig) (*Module, error) {
	if entry == nil {
		return nil, errors.Errorf("module %q has no entry computation", name)
	}
	if config == nil {
		config = NewModuleConfig(entry.ProgramShape())
	}
	if numParams := len(config.EntryComputationLayout.ParameterShapes); numParams != entry.NumParameters() {
		return nil, errors.Errorf("module %q: configuration has %d parameters, but entry computation %q has %d",
			name, numParams, entry.Name(), entry.NumParameters())
	}
	m := &Module{
		name:   name,
		entry:  entry,
		config: config,
	}
	m.computations = append(entry.CalledComputations(), entry)
	return m, nil
}

// Name of the module.
func (m *Module) Name() string { return m.name }

// EntryComputation returns the computation executed when the module is run.
func (m *Module) EntryComputation() *Computation { return m.entry }

// Computations returns all computations of the module, each listed after the computations it calls:
// the entry computation is the last one.
func (m *Module) Computations() []*Computation { return m.computations }

// Config returns the module configuration. It shouldn't be changed after the module is compiled.
func (m *Module) Config() *ModuleConfig { return m.config }

// String returns a textual dump of the whole module.
func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HloModule %s\n", m.name)
	for _, c := range m.computations {
		sb.WriteString("\n")
		if c == m.entry {
			sb.WriteString("ENTRY ")
		}
		sb.WriteString(c.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
