package algo

import (
	"math"

	"github.com/oleiade/lane/v2"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// SpaceTimeState represents (node, time) for space-time A*.
type SpaceTimeState struct {
	Node core.Node
	T    int
}

// astarNode is a frontier entry.
type astarNode struct {
	state  SpaceTimeState
	g      float64 // Cost so far
	h      float64 // Estimate to a goal state
	dist   float64 // Plain heuristic distance to the goal node
	parent *astarNode
}

// tieBreak orders equal f values toward the goal, so an agent that may hold
// its goal sits still instead of stepping off and back. Scaled by the
// largest distance it must stay below one unit step.
const tieBreak = 1e-6

func (n *astarNode) priority() float64 {
	return n.g + n.h + tieBreak*n.dist
}

// searchQuery describes one time-expanded search.
type searchQuery struct {
	env       core.Environment
	start     core.Node
	goal      core.Node
	pred      Predicate
	startTime int
	notBefore int // Goal only counts at or after this time
}

// search runs A* over (node, time) states. It returns the goal state if one
// was reached, and always the expanded state closest to the goal.
func search(q searchQuery) (found, closest *astarNode) {
	pred := q.pred
	if pred == nil {
		pred = Unconstrained
	}

	// Past this time neither the predicate nor the goal test depend on t,
	// so later states fold onto a single time layer.
	collapse := max(q.notBefore, pred.Horizon(), q.startTime)
	key := func(n core.Node, t int) SpaceTimeState {
		if t > collapse {
			t = collapse
		}
		return SpaceTimeState{Node: n, T: t}
	}

	estimate := func(n core.Node, t int) (h, dist float64) {
		dist = q.env.Heuristic(n, q.goal, t)
		h = dist
		if wait := float64(q.notBefore - t); wait > h {
			h = wait
		}
		return h, dist
	}

	open := lane.NewMinPriorityQueue[*astarNode, float64]()
	bestG := make(map[SpaceTimeState]float64)

	root := &astarNode{state: SpaceTimeState{Node: q.start, T: q.startTime}}
	root.h, root.dist = estimate(q.start, q.startTime)
	bestG[key(q.start, q.startTime)] = 0
	open.Push(root, root.priority())

	for !open.Empty() {
		current, _, ok := open.Pop()
		if !ok {
			break
		}
		if g, seen := bestG[key(current.state.Node, current.state.T)]; seen && current.g > g {
			continue // Dominated by a cheaper visit
		}

		if closest == nil || current.dist < closest.dist ||
			(current.dist == closest.dist && current.g < closest.g) {
			closest = current
		}

		if current.state.Node == q.goal && current.state.T >= q.notBefore {
			return current, closest
		}

		nextT := current.state.T + 1
		for _, succ := range q.env.Neighbors(current.state.Node, current.state.T) {
			if !pred.Allowed(succ.Node, current.state.Node, nextT) {
				continue
			}
			g := current.g + succ.Cost
			k := key(succ.Node, nextT)
			if old, seen := bestG[k]; seen && old <= g {
				continue
			}
			bestG[k] = g

			child := &astarNode{
				state:  SpaceTimeState{Node: succ.Node, T: nextT},
				g:      g,
				parent: current,
			}
			child.h, child.dist = estimate(succ.Node, nextT)
			open.Push(child, child.priority())
		}
	}

	return nil, closest
}

// SpaceTimeAStar finds the cheapest time-stamped path from start to goal
// honoring pred. If the goal cannot be reached it returns a best-effort path
// and an infinite cost. The best-effort path ends at the expanded state with
// the smallest heuristic distance to the goal, the cheapest one among equals,
// rather than the state with the lowest f.
func SpaceTimeAStar(env core.Environment, start, goal core.Node, pred Predicate) (core.Path, float64) {
	return SpaceTimeAStarFrom(env, start, goal, pred, 0)
}

// SpaceTimeAStarFrom is SpaceTimeAStar with the start state at startTime.
// The returned path still begins at index 0 with the start node.
func SpaceTimeAStarFrom(env core.Environment, start, goal core.Node, pred Predicate, startTime int) (core.Path, float64) {
	found, closest := search(searchQuery{
		env:       env,
		start:     start,
		goal:      goal,
		pred:      pred,
		startTime: startTime,
		notBefore: startTime,
	})
	if found != nil {
		return reconstructPath(found), found.g
	}
	return reconstructPath(closest), math.Inf(1)
}

// HoldAtGoal extends path so the agent sits at goal from some time at or
// after horizon, honoring pred. The agent may step off the goal and return
// when pred demands it. Once past pred's horizon nothing can displace it.
//
// If no such extension exists, the best-effort extension is padded with its
// last node up to horizon and ok is false.
func HoldAtGoal(env core.Environment, path core.Path, goal core.Node, pred Predicate, horizon int) (held core.Path, ok bool) {
	if len(path) == 0 {
		return path, false
	}
	if pred == nil {
		pred = Unconstrained
	}

	startT := len(path) - 1
	notBefore := max(horizon, pred.Horizon())
	if path.Last() == goal && startT >= notBefore {
		return path, true
	}

	found, closest := search(searchQuery{
		env:       env,
		start:     path.Last(),
		goal:      goal,
		pred:      pred,
		startTime: startT,
		notBefore: notBefore,
	})

	tail := closest
	if found != nil {
		tail = found
	}
	held = append(append(core.Path{}, path[:startT]...), reconstructPath(tail)...)
	if found != nil {
		return held, true
	}
	for len(held)-1 < horizon {
		held = append(held, held[len(held)-1])
	}
	return held, false
}

func reconstructPath(node *astarNode) core.Path {
	var path core.Path
	for n := node; n != nil; n = n.parent {
		path = append(path, n.state.Node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
