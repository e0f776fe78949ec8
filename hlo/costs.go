// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

// ComputationStats holds rough cost estimates of a computation.
type ComputationStats struct {
	// FlopCount is the number of floating point (or integer arithmetic) operations.
	FlopCount int64

	// TranscendentalCount is the number of transcendental functions evaluated (exp, log, tanh, pow).
	TranscendentalCount int64
}

// CostAnalysis estimates the cost of evaluating the instructions reachable from the root of c.
// Costs of embedded computations are multiplied by the number of times they are applied,
// except for While loops, whose body and condition are counted once.
func CostAnalysis(c *Computation) ComputationStats {
	var stats ComputationStats
	for _, inst := range c.PostOrder() {
		stats.add(instructionCost(inst))
	}
	return stats
}

func (s *ComputationStats) add(s2 ComputationStats) {
	s.FlopCount += s2.FlopCount
	s.TranscendentalCount += s2.TranscendentalCount
}

func (s ComputationStats) scale(factor int64) ComputationStats {
	return ComputationStats{FlopCount: s.FlopCount * factor, TranscendentalCount: s.TranscendentalCount * factor}
}

func instructionCost(inst *Instruction) (stats ComputationStats) {
	size := int64(inst.shape.Size())
	op := inst.opcode
	switch {
	case op.IsTranscendental():
		stats.TranscendentalCount = size
	case op.IsElementwise() && op != OpcodeConvert && op != OpcodeCopy:
		stats.FlopCount = size
	}
	switch op {
	case OpcodeDot:
		lhsShape := inst.Operand(0).shape
		contracted := int64(1)
		if lhsShape.Rank() > 0 {
			contracted = int64(lhsShape.Dimensions[lhsShape.Rank()-1])
		}
		stats.FlopCount = 2 * size * contracted
	case OpcodeConvolution:
		kernelShape := inst.Operand(1).shape
		dnums := inst.convDims
		windowSize := int64(kernelShape.Dimensions[dnums.KernelInputFeatureDimension])
		for _, axis := range dnums.KernelSpatialDimensions {
			windowSize *= int64(kernelShape.Dimensions[axis])
		}
		stats.FlopCount = 2 * size * windowSize
	case OpcodeReduce:
		applications := int64(inst.Operand(0).shape.Size())
		stats = CostAnalysis(inst.called[0]).scale(applications)
	case OpcodeMap:
		stats = CostAnalysis(inst.called[0]).scale(size)
	case OpcodeCall:
		stats = CostAnalysis(inst.called[0])
	case OpcodeWhile:
		stats = CostAnalysis(inst.called[0])
		stats.add(CostAnalysis(inst.called[1]))
	}
	return
}
