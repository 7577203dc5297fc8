package algo

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// Predicate decides which moves a single agent may make.
type Predicate interface {
	// Allowed reports whether the agent may arrive at node from prev at time t.
	Allowed(node, prev core.Node, t int) bool
	// Horizon is the time after which Allowed no longer depends on t.
	Horizon() int
}

type unconstrained struct{}

func (unconstrained) Allowed(node, prev core.Node, t int) bool { return true }
func (unconstrained) Horizon() int                             { return 0 }

// Unconstrained allows every move.
var Unconstrained Predicate = unconstrained{}

// predicateFunc adapts a plain function. Fn must behave identically for
// every t greater than Until.
type predicateFunc struct {
	Fn    func(node, prev core.Node, t int) bool
	Until int
}

func (p predicateFunc) Allowed(node, prev core.Node, t int) bool { return p.Fn(node, prev, t) }
func (p predicateFunc) Horizon() int                             { return p.Until }

// Constraint forbids one agent a single occupancy or transition.
type Constraint struct {
	Agent        int
	Time         int
	Node         core.Node
	Prev         core.Node // Forbidden predecessor, transition constraints only
	IsTransition bool
}

// agentConstraints holds the constraints of one agent.
type agentConstraints struct {
	vertex     map[int]mapset.Set[core.Node]               // t -> forbidden nodes
	transition map[int]map[core.Node]mapset.Set[core.Node] // t -> node -> forbidden predecessors
	horizon    int
}

func newAgentConstraints() *agentConstraints {
	return &agentConstraints{
		vertex:     make(map[int]mapset.Set[core.Node]),
		transition: make(map[int]map[core.Node]mapset.Set[core.Node]),
	}
}

func (a *agentConstraints) clone() *agentConstraints {
	c := newAgentConstraints()
	c.horizon = a.horizon
	for t, nodes := range a.vertex {
		c.vertex[t] = nodes.Clone()
	}
	for t, byNode := range a.transition {
		m := make(map[core.Node]mapset.Set[core.Node], len(byNode))
		for n, prevs := range byNode {
			m[n] = prevs.Clone()
		}
		c.transition[t] = m
	}
	return c
}

// Allowed implements Predicate.
func (a *agentConstraints) Allowed(node, prev core.Node, t int) bool {
	if nodes, ok := a.vertex[t]; ok && nodes.Contains(node) {
		return false
	}
	if prevs, ok := a.transition[t][node]; ok && prevs.Contains(prev) {
		return false
	}
	return true
}

// Horizon implements Predicate.
func (a *agentConstraints) Horizon() int {
	return a.horizon
}

// ConstraintSet is the constraint set of one constraint-tree node.
// A set is never mutated once a child has been derived from it.
type ConstraintSet struct {
	agents map[int]*agentConstraints
	size   int
}

// NewConstraintSet creates an empty set.
func NewConstraintSet() *ConstraintSet {
	return &ConstraintSet{agents: make(map[int]*agentConstraints)}
}

// Clone returns a deep copy.
func (cs *ConstraintSet) Clone() *ConstraintSet {
	c := &ConstraintSet{
		agents: make(map[int]*agentConstraints, len(cs.agents)),
		size:   cs.size,
	}
	for agent, ac := range cs.agents {
		c.agents[agent] = ac.clone()
	}
	return c
}

// Len returns the number of constraints held.
func (cs *ConstraintSet) Len() int {
	return cs.size
}

func (cs *ConstraintSet) agent(agent int) *agentConstraints {
	ac, ok := cs.agents[agent]
	if !ok {
		ac = newAgentConstraints()
		cs.agents[agent] = ac
	}
	return ac
}

// AddVertex forbids agent from occupying node at time t.
// Returns false if the constraint was already present.
func (cs *ConstraintSet) AddVertex(agent, t int, node core.Node) bool {
	ac := cs.agent(agent)
	nodes, ok := ac.vertex[t]
	if !ok {
		nodes = mapset.NewThreadUnsafeSet[core.Node]()
		ac.vertex[t] = nodes
	}
	if !nodes.Add(node) {
		return false
	}
	cs.added(ac, t)
	return true
}

// AddTransition forbids agent from arriving at node from prev at time t.
// Returns false if the constraint was already present.
func (cs *ConstraintSet) AddTransition(agent, t int, node, prev core.Node) bool {
	ac := cs.agent(agent)
	byNode, ok := ac.transition[t]
	if !ok {
		byNode = make(map[core.Node]mapset.Set[core.Node])
		ac.transition[t] = byNode
	}
	prevs, ok := byNode[node]
	if !ok {
		prevs = mapset.NewThreadUnsafeSet[core.Node]()
		byNode[node] = prevs
	}
	if !prevs.Add(prev) {
		return false
	}
	cs.added(ac, t)
	return true
}

func (cs *ConstraintSet) added(ac *agentConstraints, t int) {
	cs.size++
	if t > ac.horizon {
		ac.horizon = t
	}
}

// Add inserts c and reports whether it was new.
func (cs *ConstraintSet) Add(c Constraint) bool {
	if c.IsTransition {
		return cs.AddTransition(c.Agent, c.Time, c.Node, c.Prev)
	}
	return cs.AddVertex(c.Agent, c.Time, c.Node)
}

// ForAgent returns the predicate enforcing agent's constraints.
func (cs *ConstraintSet) ForAgent(agent int) Predicate {
	ac, ok := cs.agents[agent]
	if !ok {
		return Unconstrained
	}
	return ac
}
