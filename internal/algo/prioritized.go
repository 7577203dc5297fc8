package algo

import (
	"context"
	"fmt"
	"math"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// Prioritized implements prioritized planning: agents are planned one at a
// time in index order, each avoiding the paths already fixed.
type Prioritized struct{}

// NewPrioritized creates a prioritized planning solver.
func NewPrioritized() *Prioritized {
	return &Prioritized{}
}

func (p *Prioritized) Name() string { return "Prioritized" }

// reservations forbids moves that collide with already planned paths,
// treating finished agents as parked on their last node forever.
type reservations struct {
	paths   []core.Path
	horizon int
}

func (r *reservations) Allowed(node, prev core.Node, t int) bool {
	for _, p := range r.paths {
		other, _ := p.At(t)
		if other == node {
			return false
		}
		otherPrev, _ := p.At(t - 1)
		if otherPrev == node && other == prev {
			return false
		}
	}
	return true
}

func (r *reservations) Horizon() int { return r.horizon }

func (r *reservations) reserve(p core.Path) {
	r.paths = append(r.paths, p)
	if len(p) > r.horizon {
		r.horizon = len(p)
	}
}

// Solve implements prioritized planning.
func (p *Prioritized) Solve(ctx context.Context, env core.Environment, starts, goals []core.Node) (*core.Solution, error) {
	if err := validateAgents(starts, goals); err != nil {
		return nil, err
	}

	sol := core.NewSolution(len(starts))
	res := &reservations{}

	for agent := range starts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("prioritized interrupted at agent %d: %w", agent, err)
		}

		path, cost := SpaceTimeAStar(env, starts[agent], goals[agent], res)
		if math.IsInf(cost, 1) {
			return nil, fmt.Errorf("%w: agent %d blocked by higher-priority paths", ErrInfeasible, agent)
		}
		held, ok := HoldAtGoal(env, path, goals[agent], res, 0)
		if !ok {
			return nil, fmt.Errorf("%w: agent %d cannot park at %v", ErrInfeasible, agent, goals[agent])
		}

		sol.Paths[agent] = held
		sol.Costs[agent] = cost
		res.reserve(held)
	}

	// Earlier agents park at their goals while later ones finish.
	T := sol.ComputeMakespan()
	for agent, path := range sol.Paths {
		for len(path)-1 < T {
			path = append(path, path.Last())
		}
		sol.Paths[agent] = path
	}
	sol.Feasible = true
	return sol, nil
}
