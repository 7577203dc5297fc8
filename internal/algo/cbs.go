package algo

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// CBS implements Conflict-Based Search over vertex and transition constraints.
type CBS struct {
	MaxExpansions int      // Constraint-tree nodes popped before failing closed; 0 = unbounded
	Observer      Observer // Optional
}

// NewCBS creates a CBS solver.
func NewCBS(maxExpansions int) *CBS {
	return &CBS{MaxExpansions: maxExpansions}
}

func (c *CBS) Name() string { return "CBS" }

func (c *CBS) ExpansionLimit() int { return c.MaxExpansions }

func (c *CBS) WithExpansionLimit(n int) Solver {
	return &CBS{MaxExpansions: n, Observer: c.Observer}
}

// ctNode represents a node in the constraint tree.
type ctNode struct {
	constraints *ConstraintSet
	solution    []core.Path
	costs       []float64
	cost        float64 // Sum of per-agent costs
	depth       int
	horizon     int    // Common path duration T
	seq         uint64 // Insertion order, breaks remaining ties
	index       int
}

type ctHeap []*ctNode

func (h ctHeap) Len() int { return len(h) }
func (h ctHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].seq < h[j].seq
}
func (h ctHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *ctHeap) Push(x any) {
	n := x.(*ctNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *ctHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// cbsRun carries the per-call inputs so the solver itself stays stateless.
type cbsRun struct {
	env    core.Environment
	starts []core.Node
	goals  []core.Node
	seq    uint64
}

// Solve implements the CBS algorithm.
func (c *CBS) Solve(ctx context.Context, env core.Environment, starts, goals []core.Node) (*core.Solution, error) {
	if err := validateAgents(starts, goals); err != nil {
		return nil, err
	}
	run := &cbsRun{env: env, starts: starts, goals: goals}

	root, err := run.root()
	if err != nil {
		return nil, err
	}

	open := &ctHeap{}
	heap.Init(open)
	heap.Push(open, root)

	expansions := 0
	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cbs interrupted after %d expansions: %w", expansions, err)
		}
		if c.MaxExpansions > 0 && expansions >= c.MaxExpansions {
			return nil, fmt.Errorf("cbs after %d expansions: %w", expansions, ErrExpansionLimit)
		}

		node := heap.Pop(open).(*ctNode)
		expansions++
		if c.Observer != nil {
			c.Observer.OnNodeExpanded(node.info())
		}

		conflict := FindFirstConflict(node.solution)
		if conflict == nil {
			sol := &core.Solution{
				Paths:      node.solution,
				Costs:      node.costs,
				Makespan:   node.horizon,
				Expansions: expansions,
				Feasible:   true,
			}
			if c.Observer != nil {
				c.Observer.OnSolutionFound(sol)
			}
			return sol, nil
		}
		if c.Observer != nil {
			c.Observer.OnConflictDetected(node.info(), conflict)
		}

		for _, child := range run.branch(node, conflict) {
			heap.Push(open, child)
		}
	}

	return nil, fmt.Errorf("cbs after %d expansions: %w", expansions, ErrInfeasible)
}

// root plans every agent independently under no constraints.
func (r *cbsRun) root() (*ctNode, error) {
	n := len(r.starts)
	node := &ctNode{
		constraints: NewConstraintSet(),
		solution:    make([]core.Path, n),
		costs:       make([]float64, n),
	}
	for agent := 0; agent < n; agent++ {
		path, cost := SpaceTimeAStar(r.env, r.starts[agent], r.goals[agent], Unconstrained)
		if math.IsInf(cost, 1) {
			return nil, fmt.Errorf("%w: agent %d cannot reach %v", ErrInfeasible, agent, r.goals[agent])
		}
		node.solution[agent] = path
		node.costs[agent] = cost
	}
	node.horizon = horizonOf(node.solution)
	if !r.align(node) {
		return nil, fmt.Errorf("%w: goals cannot be held", ErrInfeasible)
	}
	node.cost = sumCosts(node.costs)
	return node, nil
}

// branch creates the two children resolving conflict. Children whose new
// constraint is a duplicate, or that leave an agent without a route, are dropped.
func (r *cbsRun) branch(parent *ctNode, conflict *Conflict) []*ctNode {
	var children []*ctNode
	for _, con := range conflict.Constraints() {
		child := &ctNode{
			constraints: parent.constraints.Clone(),
			solution:    append([]core.Path(nil), parent.solution...),
			costs:       append([]float64(nil), parent.costs...),
			depth:       parent.depth + 1,
			horizon:     parent.horizon,
		}
		if !child.constraints.Add(con) {
			continue
		}
		if !r.replan(child, con.Agent) {
			continue
		}
		child.cost = sumCosts(child.costs)
		r.seq++
		child.seq = r.seq
		children = append(children, child)
	}
	return children
}

// replan recomputes one agent's path under the node's constraints and
// realigns the horizon. Returns false if the agent has no feasible route.
func (r *cbsRun) replan(node *ctNode, agent int) bool {
	pred := node.constraints.ForAgent(agent)
	path, cost := SpaceTimeAStar(r.env, r.starts[agent], r.goals[agent], pred)
	if math.IsInf(cost, 1) {
		return false
	}
	node.solution[agent] = path
	node.costs[agent] = cost
	return r.align(node)
}

// align extends every path with a goal hold up to the common horizon,
// raising the horizon until all paths agree on it.
func (r *cbsRun) align(node *ctNode) bool {
	for {
		if T := horizonOf(node.solution); T > node.horizon {
			node.horizon = T
		}
		grew := false
		for agent, path := range node.solution {
			pred := node.constraints.ForAgent(agent)
			if len(path)-1 == node.horizon && pred.Horizon() <= node.horizon && path.Last() == r.goals[agent] {
				continue
			}
			held, ok := HoldAtGoal(r.env, path, r.goals[agent], pred, node.horizon)
			if !ok {
				node.costs[agent] = math.Inf(1)
				return false
			}
			node.solution[agent] = held
			if len(held)-1 > node.horizon {
				grew = true
			}
		}
		if !grew {
			return true
		}
	}
}

func sumCosts(costs []float64) float64 {
	sum := 0.0
	for _, c := range costs {
		if !math.IsInf(c, 1) {
			sum += c
		}
	}
	return sum
}
