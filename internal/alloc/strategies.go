package alloc

import (
	"fmt"
	"math/rand"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// HungarianAllocator assigns vehicles to jobs with minimum total cost.
type HungarianAllocator struct {
	allocation Allocation
	columns    []*core.Job
	cost       float64
}

// NewHungarian computes a minimum-cost allocation. The random source is
// accepted for interchangeability with other strategies and is not used.
func NewHungarian(_ *rand.Rand, vehicles []*core.Vehicle, jobs []*core.Job) (*HungarianAllocator, error) {
	if err := checkInputs(vehicles, jobs); err != nil {
		return nil, err
	}

	columns := Columns(jobs, len(vehicles))
	matrix := CostMatrix(vehicles, columns)
	assign, err := Hungarian(matrix)
	if err != nil {
		return nil, fmt.Errorf("hungarian allocation: %w", err)
	}

	h := &HungarianAllocator{
		allocation: make(Allocation, len(vehicles)),
		columns:    columns,
		cost:       AssignmentCost(matrix, assign),
	}
	for i, col := range assign {
		h.allocation[vehicles[i].ID] = columns[col]
	}
	return h, nil
}

func (h *HungarianAllocator) Allocation() Allocation { return h.allocation }
func (h *HungarianAllocator) Name() string           { return "hungarian" }

// Columns returns the job columns the matrix was built from, clones included.
func (h *HungarianAllocator) Columns() []*core.Job { return h.columns }

// TotalCost returns the cost of the chosen matching.
func (h *HungarianAllocator) TotalCost() float64 { return h.cost }

// RandomAllocator assigns jobs uniformly at random.
type RandomAllocator struct {
	allocation Allocation
}

// NewRandom picks a job per vehicle: with replacement when jobs are scarcer
// than vehicles, without replacement otherwise.
func NewRandom(rng *rand.Rand, vehicles []*core.Vehicle, jobs []*core.Job) (*RandomAllocator, error) {
	if err := checkInputs(vehicles, jobs); err != nil {
		return nil, err
	}

	r := &RandomAllocator{allocation: make(Allocation, len(vehicles))}
	if len(jobs) < len(vehicles) {
		for _, v := range vehicles {
			r.allocation[v.ID] = jobs[rng.Intn(len(jobs))]
		}
		return r, nil
	}
	perm := rng.Perm(len(jobs))
	for i, v := range vehicles {
		r.allocation[v.ID] = jobs[perm[i]]
	}
	return r, nil
}

func (r *RandomAllocator) Allocation() Allocation { return r.allocation }
func (r *RandomAllocator) Name() string           { return "random" }
