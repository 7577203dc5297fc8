// Package algo implements fleet path-planning algorithms.
package algo

import (
	"context"
	"errors"
	"fmt"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

var (
	// ErrInfeasible means no conflict-free joint solution exists.
	ErrInfeasible = errors.New("no conflict-free solution")
	// ErrExpansionLimit means the search gave up before deciding feasibility.
	ErrExpansionLimit = errors.New("expansion limit reached")
	// ErrMismatchedAgents means starts and goals do not describe the same agents.
	ErrMismatchedAgents = errors.New("starts and goals must be non-empty and of equal length")
)

// Solver is the interface for multi-agent path-finding algorithms.
type Solver interface {
	// Solve returns time-aligned conflict-free paths, one per agent.
	Solve(ctx context.Context, env core.Environment, starts, goals []core.Node) (*core.Solution, error)

	// Name returns the algorithm name.
	Name() string
}

// Budgeted is implemented by solvers that give up after a number of
// expansions. WithExpansionLimit returns a copy with a new limit.
type Budgeted interface {
	Solver
	ExpansionLimit() int
	WithExpansionLimit(n int) Solver
}

// Conflict represents a collision between two agents.
type Conflict struct {
	Agent1, Agent2 int
	Node           core.Node
	Prev           core.Node // Node Agent1 left, transition conflicts only
	Time           int
	IsTransition   bool // Swap conflict vs vertex conflict
}

func (c *Conflict) String() string {
	if c.IsTransition {
		return fmt.Sprintf("swap agents %d/%d %v<->%v at t=%d", c.Agent1, c.Agent2, c.Prev, c.Node, c.Time)
	}
	return fmt.Sprintf("vertex agents %d/%d at %v t=%d", c.Agent1, c.Agent2, c.Node, c.Time)
}

// Constraints returns the two branches resolving the conflict, one per agent.
func (c *Conflict) Constraints() [2]Constraint {
	if !c.IsTransition {
		return [2]Constraint{
			{Agent: c.Agent1, Time: c.Time, Node: c.Node},
			{Agent: c.Agent2, Time: c.Time, Node: c.Node},
		}
	}
	// Agent1 moved Prev -> Node while Agent2 moved Node -> Prev.
	return [2]Constraint{
		{Agent: c.Agent1, Time: c.Time, Node: c.Node, Prev: c.Prev, IsTransition: true},
		{Agent: c.Agent2, Time: c.Time, Node: c.Prev, Prev: c.Node, IsTransition: true},
	}
}

func validateAgents(starts, goals []core.Node) error {
	if len(starts) == 0 || len(starts) != len(goals) {
		return ErrMismatchedAgents
	}
	seenStart := make(map[core.Node]int, len(starts))
	seenGoal := make(map[core.Node]int, len(goals))
	for i := range starts {
		if j, ok := seenStart[starts[i]]; ok {
			return fmt.Errorf("%w: agents %d and %d share start %v", ErrInfeasible, j, i, starts[i])
		}
		if j, ok := seenGoal[goals[i]]; ok {
			return fmt.Errorf("%w: agents %d and %d share goal %v", ErrInfeasible, j, i, goals[i])
		}
		seenStart[starts[i]] = i
		seenGoal[goals[i]] = i
	}
	return nil
}

func horizonOf(paths []core.Path) int {
	maxT := 0
	for _, p := range paths {
		if len(p)-1 > maxT {
			maxT = len(p) - 1
		}
	}
	return maxT
}

// conflictsAt appends the conflicts at time t, vertex conflicts first.
// With first set it stops at the first one found.
func conflictsAt(paths []core.Path, t int, first bool, out []*Conflict) []*Conflict {
	occupied := make(map[core.Node]int, len(paths))
	for agent, p := range paths {
		node, ok := p.At(t)
		if !ok {
			continue
		}
		if other, taken := occupied[node]; taken {
			out = append(out, &Conflict{Agent1: other, Agent2: agent, Node: node, Time: t})
			if first {
				return out
			}
			continue
		}
		occupied[node] = agent
	}
	if t == 0 {
		return out
	}

	for a := range paths {
		cur, ok := paths[a].At(t)
		if !ok {
			continue
		}
		prev, _ := paths[a].At(t - 1)
		if prev == cur {
			continue
		}
		for b := a + 1; b < len(paths); b++ {
			bPrev, ok := paths[b].At(t - 1)
			if !ok {
				continue
			}
			bCur, _ := paths[b].At(t)
			if bPrev == cur && bCur == prev {
				out = append(out, &Conflict{Agent1: a, Agent2: b, Node: cur, Prev: prev, Time: t, IsTransition: true})
				if first {
					return out
				}
			}
		}
	}
	return out
}

// FindFirstConflict returns the earliest conflict in time order, or nil.
// Agents whose path ended hold their last node.
func FindFirstConflict(paths []core.Path) *Conflict {
	T := horizonOf(paths)
	for t := 0; t <= T; t++ {
		if found := conflictsAt(paths, t, true, nil); len(found) > 0 {
			return found[0]
		}
	}
	return nil
}

// FindAllConflicts detects all conflicts in paths.
func FindAllConflicts(paths []core.Path) []*Conflict {
	var conflicts []*Conflict
	T := horizonOf(paths)
	for t := 0; t <= T; t++ {
		conflicts = conflictsAt(paths, t, false, conflicts)
	}
	return conflicts
}
