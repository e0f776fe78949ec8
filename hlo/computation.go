// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"strings"

	"github.com/gomlx/hlo/types/shapes"
)

// Computation is an acyclic set of instructions with one designated root (its output).
//
// The instructions are stored in an arena, in the order they were added, which is always a valid topological
// order: operands are always added before the instructions that use them.
// Create it with a Builder.
type Computation struct {
	name         string
	instructions []*Instruction
	root         InstructionID
	parameters   []InstructionID // Indexed by parameter number.
}

// Name of the computation.
func (c *Computation) Name() string { return c.name }

// Root returns the instruction whose value is the output of the computation.
func (c *Computation) Root() *Instruction { return c.instructions[c.root] }

// Instructions returns all instructions, in the order they were added. It shouldn't be modified.
func (c *Computation) Instructions() []*Instruction { return c.instructions }

// Instruction returns the instruction with the given id.
func (c *Computation) Instruction(id InstructionID) *Instruction { return c.instructions[id] }

// NumParameters returns the number of parameters of the computation.
func (c *Computation) NumParameters() int { return len(c.parameters) }

// ParameterInstruction returns the Parameter instruction with the given parameter number.
func (c *Computation) ParameterInstruction(number int) *Instruction {
	return c.instructions[c.parameters[number]]
}

// ProgramShape returns the shapes of the parameters and of the result of the computation.
func (c *Computation) ProgramShape() ProgramShape {
	ps := ProgramShape{
		Parameters:     make([]shapes.Shape, len(c.parameters)),
		ParameterNames: make([]string, len(c.parameters)),
		Result:         c.Root().shape.Clone(),
	}
	for ii, id := range c.parameters {
		ps.Parameters[ii] = c.instructions[id].shape.Clone()
		ps.ParameterNames[ii] = c.instructions[id].name
	}
	return ps
}

// PostOrder returns the instructions reachable from the root, each one listed after all its operands,
// following a depth-first traversal from the root.
func (c *Computation) PostOrder() []*Instruction {
	return c.PostOrderFrom(c.root)
}

// PostOrderFrom returns the instructions reachable from the given instruction, each one listed after all
// its operands.
func (c *Computation) PostOrderFrom(start InstructionID) []*Instruction {
	visited := make([]bool, len(c.instructions))
	order := make([]*Instruction, 0, len(c.instructions))
	type frame struct {
		id          InstructionID
		nextOperand int
	}
	stack := []frame{{id: start}}
	visited[start] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		inst := c.instructions[top.id]
		if top.nextOperand < len(inst.operands) {
			operandID := inst.operands[top.nextOperand]
			top.nextOperand++
			if !visited[operandID] {
				visited[operandID] = true
				stack = append(stack, frame{id: operandID})
			}
			continue
		}
		order = append(order, inst)
		stack = stack[:len(stack)-1]
	}
	return order
}

// CalledComputations returns all computations embedded (transitively) by this one, each listed after the
// computations it embeds. The computation itself is not included.
func (c *Computation) CalledComputations() []*Computation {
	var result []*Computation
	seen := make(map[*Computation]bool)
	var visit func(comp *Computation)
	visit = func(comp *Computation) {
		for _, inst := range comp.instructions {
			for _, called := range inst.called {
				if seen[called] {
					continue
				}
				seen[called] = true
				visit(called)
				result = append(result, called)
			}
		}
	}
	visit(c)
	return result
}

// String returns a textual dump of the computation.
func (c *Computation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%s %s {\n", c.name, c.ProgramShape())
	for _, inst := range c.instructions {
		prefix := "  "
		if inst.id == c.root {
			prefix = "  ROOT "
		}
		sb.WriteString(prefix)
		sb.WriteString(inst.String())
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// ProgramShape holds the shapes of the parameters and of the result of a computation.
type ProgramShape struct {
	Parameters     []shapes.Shape
	ParameterNames []string
	Result         shapes.Shape
}

// String implements fmt.Stringer, in the format "(name: shape, ...) -> shape".
func (ps ProgramShape) String() string {
	parts := make([]string, len(ps.Parameters))
	for ii, shape := range ps.Parameters {
		name := fmt.Sprintf("p%d", ii)
		if ii < len(ps.ParameterNames) && ps.ParameterNames[ii] != "" {
			name = ps.ParameterNames[ii]
		}
		parts[ii] = fmt.Sprintf("%s: %s", name, shape)
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), ps.Result)
}
