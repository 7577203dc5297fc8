package core

import "math"

// Solution is a joint set of time-aligned paths, one per agent.
type Solution struct {
	Paths      []Path
	Costs      []float64 // Per-agent search cost
	Makespan   int       // Common horizon T
	Expansions int       // Constraint-tree nodes popped
	Feasible   bool
}

// NewSolution creates an empty solution for n agents.
func NewSolution(n int) *Solution {
	return &Solution{
		Paths: make([]Path, n),
		Costs: make([]float64, n),
	}
}

// SumOfCosts adds the finite per-agent costs.
func (s *Solution) SumOfCosts() float64 {
	sum := 0.0
	for _, c := range s.Costs {
		if !math.IsInf(c, 1) {
			sum += c
		}
	}
	return sum
}

// ComputeMakespan sets and returns the longest path duration.
func (s *Solution) ComputeMakespan() int {
	maxT := 0
	for _, p := range s.Paths {
		if len(p)-1 > maxT {
			maxT = len(p) - 1
		}
	}
	s.Makespan = maxT
	return maxT
}
