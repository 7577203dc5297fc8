package algo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oleiade/lane/v2"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// JointAStar searches the product space of all agents at once. It is
// complete and optimal for the sum of move costs but exponential in the
// number of agents, so it only serves small instances.
type JointAStar struct {
	MaxExpansions int // 0 = unbounded
}

// NewJointAStar creates a joint-space A* solver.
func NewJointAStar(maxExpansions int) *JointAStar {
	return &JointAStar{MaxExpansions: maxExpansions}
}

func (j *JointAStar) Name() string { return "JointA*" }

func (j *JointAStar) ExpansionLimit() int { return j.MaxExpansions }

func (j *JointAStar) WithExpansionLimit(n int) Solver {
	return &JointAStar{MaxExpansions: n}
}

type jointNode struct {
	nodes  []core.Node
	g      float64
	t      int
	parent *jointNode
}

func jointKey(nodes []core.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(strconv.Itoa(n.X))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(n.Y))
		b.WriteByte(';')
	}
	return b.String()
}

// Solve implements joint-space A*. Agents resting on their goal pay nothing.
func (j *JointAStar) Solve(ctx context.Context, env core.Environment, starts, goals []core.Node) (*core.Solution, error) {
	if err := validateAgents(starts, goals); err != nil {
		return nil, err
	}

	heuristic := func(nodes []core.Node) float64 {
		h := 0.0
		for i, n := range nodes {
			h += env.Heuristic(n, goals[i], 0)
		}
		return h
	}
	atGoal := func(nodes []core.Node) bool {
		for i, n := range nodes {
			if n != goals[i] {
				return false
			}
		}
		return true
	}

	open := lane.NewMinPriorityQueue[*jointNode, float64]()
	bestG := make(map[string]float64)

	root := &jointNode{nodes: append([]core.Node(nil), starts...)}
	bestG[jointKey(root.nodes)] = 0
	open.Push(root, heuristic(root.nodes))

	expansions := 0
	for !open.Empty() {
		current, _, ok := open.Pop()
		if !ok {
			break
		}
		if current.g > bestG[jointKey(current.nodes)] {
			continue
		}
		if atGoal(current.nodes) {
			return j.solution(current, goals, expansions), nil
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("joint search interrupted: %w", err)
		}
		expansions++
		if j.MaxExpansions > 0 && expansions > j.MaxExpansions {
			return nil, fmt.Errorf("joint search: %w", ErrExpansionLimit)
		}

		choices := make([][]core.Successor, len(current.nodes))
		for i, n := range current.nodes {
			choices[i] = env.Neighbors(n, current.t)
		}

		next := make([]core.Node, len(current.nodes))
		var expand func(agent int, g float64)
		expand = func(agent int, g float64) {
			if agent == len(next) {
				if collides(current.nodes, next) {
					return
				}
				key := jointKey(next)
				if old, seen := bestG[key]; seen && old <= g {
					return
				}
				bestG[key] = g
				child := &jointNode{nodes: append([]core.Node(nil), next...), g: g, t: current.t + 1, parent: current}
				open.Push(child, g+heuristic(child.nodes))
				return
			}
			for _, succ := range choices[agent] {
				cost := succ.Cost
				if succ.Node == goals[agent] && current.nodes[agent] == goals[agent] {
					cost = 0
				}
				next[agent] = succ.Node
				expand(agent+1, g+cost)
			}
		}
		expand(0, current.g)
	}

	return nil, fmt.Errorf("joint search: %w", ErrInfeasible)
}

// collides reports vertex or swap collisions in a joint move.
func collides(from, to []core.Node) bool {
	for a := range to {
		for b := a + 1; b < len(to); b++ {
			if to[a] == to[b] {
				return true
			}
			if to[a] == from[b] && to[b] == from[a] && from[a] != to[a] {
				return true
			}
		}
	}
	return false
}

func (j *JointAStar) solution(goal *jointNode, goals []core.Node, expansions int) *core.Solution {
	var states [][]core.Node
	for n := goal; n != nil; n = n.parent {
		states = append(states, n.nodes)
	}
	sol := core.NewSolution(len(goals))
	for i := range goals {
		path := make(core.Path, len(states))
		for t := range states {
			path[t] = states[len(states)-1-t][i]
		}
		sol.Paths[i] = path

		arrival := len(path) - 1
		for arrival > 0 && path[arrival-1] == goals[i] {
			arrival--
		}
		sol.Costs[i] = float64(arrival)
	}
	sol.ComputeMakespan()
	sol.Expansions = expansions
	sol.Feasible = true
	return sol
}
