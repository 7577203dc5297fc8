// Package alloc binds vehicles to jobs.
package alloc

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

var (
	ErrNoVehicles  = errors.New("no vehicles to allocate")
	ErrNoJobs      = errors.New("no jobs to allocate")
	ErrNotSquare   = errors.New("cost matrix is not square")
	ErrEmptyMatrix = errors.New("cost matrix is empty")
)

// Allocation maps each vehicle to the job it should serve. Several vehicles
// may share a job when there are fewer jobs than vehicles.
type Allocation map[core.VehicleID]*core.Job

// Allocator is a computed allocation strategy.
type Allocator interface {
	// Allocation returns the complete vehicle to job mapping.
	Allocation() Allocation

	// Name returns the strategy name.
	Name() string
}

// Factory builds an allocator from a random source and the live fleet and job pool.
type Factory func(rng *rand.Rand, vehicles []*core.Vehicle, jobs []*core.Job) (Allocator, error)

// ByName resolves a strategy name to its factory.
func ByName(name string) (Factory, error) {
	switch name {
	case "hungarian", "":
		return func(rng *rand.Rand, vehicles []*core.Vehicle, jobs []*core.Job) (Allocator, error) {
			h, err := NewHungarian(rng, vehicles, jobs)
			if err != nil {
				return nil, err
			}
			return h, nil
		}, nil
	case "random":
		return func(rng *rand.Rand, vehicles []*core.Vehicle, jobs []*core.Job) (Allocator, error) {
			r, err := NewRandom(rng, vehicles, jobs)
			if err != nil {
				return nil, err
			}
			return r, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown allocation strategy %q", name)
	}
}

func checkInputs(vehicles []*core.Vehicle, jobs []*core.Job) error {
	if len(vehicles) == 0 {
		return ErrNoVehicles
	}
	if len(jobs) == 0 {
		return ErrNoJobs
	}
	return nil
}

// PriorityWeight scales assignment cost by job priority class.
// Urgent jobs look cheaper so they win contested vehicles.
func PriorityWeight(priority int) float64 {
	switch priority {
	case core.PriorityHigh:
		return 0.4
	case core.PriorityMedium:
		return 1
	default:
		return 3
	}
}

// FinishFactor discounts jobs the vehicle can complete with its current load.
func FinishFactor(v *core.Vehicle, j *core.Job) float64 {
	if v.Load >= j.Value {
		return 0.8
	}
	return 1
}

// Cost is the assignment cost of sending v to j.
func Cost(v *core.Vehicle, j *core.Job) float64 {
	dist := float64(core.Manhattan(v.EffectivePos(), j.Pos)) * v.Class.Capabilities().CostScale
	return dist * FinishFactor(v, j) * PriorityWeight(j.Priority)
}

// CostMatrix builds the vehicles x jobs cost matrix.
func CostMatrix(vehicles []*core.Vehicle, jobs []*core.Job) [][]float64 {
	m := make([][]float64, len(vehicles))
	for i, v := range vehicles {
		m[i] = make([]float64, len(jobs))
		for k, j := range jobs {
			m[i][k] = Cost(v, j)
		}
	}
	return m
}

// Columns picks exactly n job columns: the n most urgent jobs, or every job
// followed by clones of the most urgent ones when there are fewer than n.
func Columns(jobs []*core.Job, n int) []*core.Job {
	ranked := append([]*core.Job(nil), jobs...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return core.MoreUrgent(ranked[a], ranked[b])
	})
	if len(ranked) >= n {
		return ranked[:n]
	}
	cols := append([]*core.Job(nil), ranked...)
	for k := 0; len(cols) < n; k++ {
		cols = append(cols, ranked[k%len(ranked)])
	}
	return cols
}
