package algo

import (
	"context"
	"testing"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// createGrid creates an obstacle-free n x n grid.
func createGrid(n int) *core.Grid {
	return core.NewGrid(n, n)
}

// assertConflictFree fails the test on any vertex or swap conflict.
func assertConflictFree(t *testing.T, paths []core.Path) {
	t.Helper()
	if conflict := FindFirstConflict(paths); conflict != nil {
		t.Errorf("Solution has conflict: %v", conflict)
	}
	for i, p := range paths {
		if !p.Valid() {
			t.Errorf("Path %d has an invalid step: %v", i, p)
		}
	}
}

func TestFindFirstConflict_NoConflict(t *testing.T) {
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}},
		{{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 1, Y: 2}},
	}

	if conflict := FindFirstConflict(paths); conflict != nil {
		t.Errorf("Expected no conflict, got: %v", conflict)
	}
}

func TestFindFirstConflict_VertexConflict(t *testing.T) {
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}},
		{{X: 1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1}}, // Both at (0,1) at t=1
	}

	conflict := FindFirstConflict(paths)
	if conflict == nil {
		t.Fatal("Expected vertex conflict, got nil")
	}
	if conflict.Node != (core.Node{X: 0, Y: 1}) || conflict.Time != 1 {
		t.Errorf("Expected conflict at (0,1) t=1, got %v", conflict)
	}
	if conflict.IsTransition {
		t.Error("Expected vertex conflict, got transition conflict")
	}
}

func TestFindFirstConflict_SwapConflict(t *testing.T) {
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}}, // (0,0) -> (0,1)
		{{X: 0, Y: 1}, {X: 0, Y: 0}}, // (0,1) -> (0,0)
	}

	conflict := FindFirstConflict(paths)
	if conflict == nil {
		t.Fatal("Expected swap conflict, got nil")
	}
	if !conflict.IsTransition {
		t.Fatal("Expected transition conflict, got vertex conflict")
	}
	if conflict.Time != 1 || conflict.Node != (core.Node{X: 0, Y: 1}) || conflict.Prev != (core.Node{X: 0, Y: 0}) {
		t.Errorf("Unexpected conflict details: %v", conflict)
	}

	cons := conflict.Constraints()
	if cons[0].Agent != 0 || cons[0].Node != (core.Node{X: 0, Y: 1}) || cons[0].Prev != (core.Node{X: 0, Y: 0}) {
		t.Errorf("Unexpected first branch: %+v", cons[0])
	}
	if cons[1].Agent != 1 || cons[1].Node != (core.Node{X: 0, Y: 0}) || cons[1].Prev != (core.Node{X: 0, Y: 1}) {
		t.Errorf("Unexpected second branch: %+v", cons[1])
	}
}

func TestFindFirstConflict_HoldingAgentBlocks(t *testing.T) {
	// Agent 0 finished at (0,1) and keeps occupying it.
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}},
		{{X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1}},
	}

	conflict := FindFirstConflict(paths)
	if conflict == nil || conflict.Time != 2 || conflict.Node != (core.Node{X: 0, Y: 1}) {
		t.Errorf("Expected conflict with holding agent at t=2, got %v", conflict)
	}
}

func TestFindFirstConflict_EarliestFirst(t *testing.T) {
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 0, Y: 3}},
		{{X: 1, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 1}, {X: 1, Y: 1}}, // Swap at t=2 between (0,1) and (0,2)
		{{X: 2, Y: 3}, {X: 1, Y: 3}, {X: 0, Y: 3}, {X: 0, Y: 3}}, // Vertex conflict with agent 0 at t=3
	}

	conflict := FindFirstConflict(paths)
	if conflict == nil || !conflict.IsTransition || conflict.Time != 2 {
		t.Errorf("Expected swap at t=2 first, got %v", conflict)
	}
}

func TestFindAllConflicts(t *testing.T) {
	paths := []core.Path{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}},
		{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}}, // Conflicts at (0,1) t=1 and (0,2) t=2
	}

	conflicts := FindAllConflicts(paths)
	if len(conflicts) != 2 {
		t.Errorf("Expected 2 conflicts, got %d", len(conflicts))
	}
}

func TestValidateAgents(t *testing.T) {
	if err := validateAgents(nil, nil); err != ErrMismatchedAgents {
		t.Errorf("Expected ErrMismatchedAgents, got %v", err)
	}
	if err := validateAgents([]core.Node{{X: 0, Y: 0}}, []core.Node{{X: 1, Y: 1}, {X: 2, Y: 2}}); err != ErrMismatchedAgents {
		t.Errorf("Expected ErrMismatchedAgents, got %v", err)
	}
}

func TestAllSolversReturnSolution(t *testing.T) {
	env := createGrid(5)
	starts := []core.Node{{X: 0, Y: 0}, {X: 0, Y: 1}}
	goals := []core.Node{{X: 4, Y: 4}, {X: 4, Y: 3}}

	solvers := []Solver{
		NewCBS(1000),
		NewPrioritized(),
		NewJointAStar(200000),
	}

	for _, solver := range solvers {
		t.Run(solver.Name(), func(t *testing.T) {
			sol, err := solver.Solve(context.Background(), env, starts, goals)
			if err != nil {
				t.Fatalf("Solver returned error: %v", err)
			}
			if !sol.Feasible {
				t.Error("Solution marked as not feasible")
			}
			if len(sol.Paths) != len(starts) {
				t.Fatalf("Expected %d paths, got %d", len(starts), len(sol.Paths))
			}

			for i, path := range sol.Paths {
				if path[0] != starts[i] {
					t.Errorf("Agent %d starts at %v, want %v", i, path[0], starts[i])
				}
				if path.Last() != goals[i] {
					t.Errorf("Agent %d ends at %v, want %v", i, path.Last(), goals[i])
				}
			}
			assertConflictFree(t, sol.Paths)
		})
	}
}
