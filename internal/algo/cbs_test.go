package algo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// pocketCorridor is a one-lane corridor with a single side pocket at (0,1).
func pocketCorridor() *core.Grid {
	return core.NewGridFromRows([]string{
		"#.####",
		"......",
	})
}

func TestCBS_IndependentAgents(t *testing.T) {
	env := createGrid(5)
	starts := []core.Node{{X: 0, Y: 0}, {X: 0, Y: 1}}
	goals := []core.Node{{X: 4, Y: 4}, {X: 4, Y: 3}}

	sol, err := NewCBS(1000).Solve(context.Background(), env, starts, goals)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	for i, p := range sol.Paths {
		if len(p) != 9 {
			t.Errorf("Agent %d: expected 9 states, got %d (%v)", i, len(p), p)
		}
	}
	if sol.SumOfCosts() != 14 {
		t.Errorf("Expected sum of costs 14, got %.0f", sol.SumOfCosts())
	}
	assertConflictFree(t, sol.Paths)
}

func TestCBS_SettledAgentStaysOnGoal(t *testing.T) {
	env := createGrid(5)
	starts := []core.Node{{X: 0, Y: 0}, {X: 4, Y: 4}}
	goals := []core.Node{{X: 0, Y: 1}, {X: 0, Y: 4}}

	sol, err := NewCBS(100).Solve(context.Background(), env, starts, goals)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.Makespan != 4 || len(sol.Paths[0]) != 5 {
		t.Fatalf("Expected both paths to span t=0..4, got %v", sol.Paths)
	}
	for ti := 1; ti < len(sol.Paths[0]); ti++ {
		if sol.Paths[0][ti] != goals[0] {
			t.Errorf("Agent 0 left its goal at t=%d: %v", ti, sol.Paths[0])
		}
	}
	if sol.Costs[0] != 1 || sol.Costs[1] != 4 {
		t.Errorf("Expected costs [1 4], got %v", sol.Costs)
	}
	assertConflictFree(t, sol.Paths)
}

func TestCBS_CorridorSwapUsesPocket(t *testing.T) {
	env := pocketCorridor()
	starts := []core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}}
	goals := []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}}

	paths := make([]core.Path, 2)
	for i := range starts {
		paths[i], _ = SpaceTimeAStar(env, starts[i], goals[i], Unconstrained)
	}
	first := FindFirstConflict(paths)
	if first == nil || !first.IsTransition || first.Time != 3 {
		t.Fatalf("Expected a swap at t=3 between independent plans, got %v", first)
	}

	sol, err := NewCBS(10000).Solve(context.Background(), env, starts, goals)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	assertConflictFree(t, sol.Paths)
	for i, p := range sol.Paths {
		if p[0] != starts[i] || p.Last() != goals[i] {
			t.Errorf("Agent %d: bad endpoints %v", i, p)
		}
		if len(p)-1 != sol.Makespan {
			t.Errorf("Agent %d: duration %d, makespan %d", i, len(p)-1, sol.Makespan)
		}
	}
	if sol.SumOfCosts() != 14 {
		t.Errorf("Expected optimal sum of costs 14, got %.0f", sol.SumOfCosts())
	}
	if sol.Costs[0] <= 5 && sol.Costs[1] <= 5 {
		t.Errorf("One agent must detour through the pocket, costs %v", sol.Costs)
	}
}

func TestCBS_ChildrenNeverCheaperThanParent(t *testing.T) {
	run := &cbsRun{
		env:    pocketCorridor(),
		starts: []core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}},
		goals:  []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}},
	}
	root, err := run.root()
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}

	frontier := []*ctNode{root}
	for step := 0; step < 30 && len(frontier) > 0; step++ {
		node := frontier[0]
		frontier = frontier[1:]
		conflict := FindFirstConflict(node.solution)
		if conflict == nil {
			continue
		}
		before := append([]core.Path(nil), node.solution...)
		for _, child := range run.branch(node, conflict) {
			if child.cost < node.cost {
				t.Errorf("Child cost %.0f below parent cost %.0f", child.cost, node.cost)
			}
			if child.depth != node.depth+1 {
				t.Errorf("Child depth %d, parent depth %d", child.depth, node.depth)
			}
			frontier = append(frontier, child)
		}
		for i := range before {
			if len(before[i]) != len(node.solution[i]) {
				t.Fatalf("Branching modified the parent's paths")
			}
		}
	}
}

func TestCBS_DuplicateConstraintDropsChild(t *testing.T) {
	run := &cbsRun{
		env:    pocketCorridor(),
		starts: []core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}},
		goals:  []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}},
	}
	root, err := run.root()
	if err != nil {
		t.Fatalf("root failed: %v", err)
	}
	conflict := FindFirstConflict(root.solution)
	if conflict == nil {
		t.Fatal("Expected a root conflict")
	}
	cons := conflict.Constraints()
	root.constraints.Add(cons[0])

	children := run.branch(root, conflict)
	for _, child := range children {
		if child.constraints.Len() != 2 {
			t.Errorf("Expected only the non-duplicate branch, got %d constraints", child.constraints.Len())
		}
	}
}

func TestCBS_Errors(t *testing.T) {
	env := createGrid(3)
	ctx := context.Background()

	if _, err := NewCBS(0).Solve(ctx, env, []core.Node{{X: 0, Y: 0}}, nil); !errors.Is(err, ErrMismatchedAgents) {
		t.Errorf("Expected ErrMismatchedAgents, got %v", err)
	}

	_, err := NewCBS(0).Solve(ctx, env, []core.Node{{X: 0, Y: 0}, {X: 0, Y: 1}}, []core.Node{{X: 2, Y: 2}, {X: 2, Y: 2}})
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("Expected ErrInfeasible for a shared goal, got %v", err)
	}

	walled := createGrid(5)
	for _, n := range []core.Node{{X: 1, Y: 2}, {X: 3, Y: 2}, {X: 2, Y: 1}, {X: 2, Y: 3}} {
		walled.Block(n)
	}
	_, err = NewCBS(0).Solve(ctx, walled, []core.Node{{X: 0, Y: 0}}, []core.Node{{X: 2, Y: 2}})
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("Expected ErrInfeasible for an enclosed goal, got %v", err)
	}
}

func TestCBS_ExpansionLimit(t *testing.T) {
	// Two agents swapping ends of a two-cell strip can never pass.
	env := core.NewGridFromRows([]string{".."})
	starts := []core.Node{{X: 0, Y: 0}, {X: 0, Y: 1}}
	goals := []core.Node{{X: 0, Y: 1}, {X: 0, Y: 0}}

	_, err := NewCBS(50).Solve(context.Background(), env, starts, goals)
	if !errors.Is(err, ErrExpansionLimit) {
		t.Errorf("Expected ErrExpansionLimit, got %v", err)
	}
}

func TestCBS_WithExpansionLimit(t *testing.T) {
	env := pocketCorridor()
	starts := []core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}}
	goals := []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}}

	obs := &countingObserver{}
	tight := NewCBS(1)
	tight.Observer = obs
	if _, err := tight.Solve(context.Background(), env, starts, goals); !errors.Is(err, ErrExpansionLimit) {
		t.Fatalf("Expected ErrExpansionLimit with one expansion, got %v", err)
	}

	var b Budgeted = tight
	wider := b.WithExpansionLimit(10000)
	if got := wider.(Budgeted).ExpansionLimit(); got != 10000 {
		t.Errorf("Expected limit 10000, got %d", got)
	}
	if tight.MaxExpansions != 1 {
		t.Error("WithExpansionLimit must not modify the receiver")
	}
	if wider.(*CBS).Observer != obs {
		t.Error("Observer should carry over")
	}
	if _, err := wider.Solve(context.Background(), env, starts, goals); err != nil {
		t.Errorf("Expected a solution with the larger limit, got %v", err)
	}
}

func TestCBS_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCBS(0).Solve(ctx, createGrid(3), []core.Node{{X: 0, Y: 0}}, []core.Node{{X: 2, Y: 2}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPrioritized_BlockedByParkedAgent(t *testing.T) {
	env := core.NewGridFromRows([]string{"..."})
	starts := []core.Node{{X: 0, Y: 0}, {X: 0, Y: 2}}
	goals := []core.Node{{X: 0, Y: 1}, {X: 0, Y: 0}}

	_, err := NewPrioritized().Solve(context.Background(), env, starts, goals)
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("Expected ErrInfeasible, got %v", err)
	}
}

func TestPrioritized_PadsToMakespan(t *testing.T) {
	env := createGrid(4)
	starts := []core.Node{{X: 0, Y: 0}, {X: 3, Y: 0}}
	goals := []core.Node{{X: 0, Y: 1}, {X: 3, Y: 3}}

	sol, err := NewPrioritized().Solve(context.Background(), env, starts, goals)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if sol.Makespan != 3 {
		t.Errorf("Expected makespan 3, got %d", sol.Makespan)
	}
	for i, p := range sol.Paths {
		if len(p)-1 != sol.Makespan {
			t.Errorf("Agent %d: duration %d, want %d", i, len(p)-1, sol.Makespan)
		}
	}
	if math.IsInf(sol.SumOfCosts(), 1) || sol.SumOfCosts() != 4 {
		t.Errorf("Expected sum of costs 4, got %.0f", sol.SumOfCosts())
	}
}

func TestJointAStar_CorridorSwap(t *testing.T) {
	env := pocketCorridor()
	starts := []core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}}
	goals := []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}}

	sol, err := NewJointAStar(0).Solve(context.Background(), env, starts, goals)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	assertConflictFree(t, sol.Paths)
	for i, p := range sol.Paths {
		if p.Last() != goals[i] {
			t.Errorf("Agent %d ends at %v", i, p.Last())
		}
	}
}

func TestJointAStar_Infeasible(t *testing.T) {
	env := core.NewGridFromRows([]string{".."})
	_, err := NewJointAStar(0).Solve(context.Background(), env,
		[]core.Node{{X: 0, Y: 0}, {X: 0, Y: 1}}, []core.Node{{X: 0, Y: 1}, {X: 0, Y: 0}})
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("Expected ErrInfeasible from exhausted joint space, got %v", err)
	}
}

type countingObserver struct {
	expanded, conflicts, solved int
	maxDepth                    int
}

func (o *countingObserver) OnNodeExpanded(node NodeInfo) {
	o.expanded++
	if node.Depth > o.maxDepth {
		o.maxDepth = node.Depth
	}
}

func (o *countingObserver) OnConflictDetected(node NodeInfo, conflict *Conflict) { o.conflicts++ }
func (o *countingObserver) OnSolutionFound(solution *core.Solution)              { o.solved++ }

func TestCBS_Observer(t *testing.T) {
	obs := &countingObserver{}
	cbs := NewCBS(10000)
	cbs.Observer = obs

	sol, err := cbs.Solve(context.Background(), pocketCorridor(),
		[]core.Node{{X: 1, Y: 0}, {X: 1, Y: 5}}, []core.Node{{X: 1, Y: 5}, {X: 1, Y: 0}})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if obs.expanded != sol.Expansions {
		t.Errorf("Observed %d expansions, solution reports %d", obs.expanded, sol.Expansions)
	}
	if obs.solved != 1 || obs.conflicts != obs.expanded-1 {
		t.Errorf("Unexpected callbacks: %+v", obs)
	}
	if obs.maxDepth == 0 {
		t.Error("Expected the corridor to need at least one branch")
	}
}
