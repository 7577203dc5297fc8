package config

import (
	"fmt"
	"math/rand"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// GenerateParams defines parameters for scenario generation.
type GenerateParams struct {
	Seed            int64
	Width, Height   int
	ObstacleDensity float64 // Fraction of cells blocked before pruning
	Vehicles        int
	TruckRatio      float64 // Fraction of vehicles that are trucks
	Jobs            int
	Warehouses      int
}

// Generate creates a deterministic random scenario. Free cells outside the
// largest connected region are blocked so every goal is reachable.
func Generate(p GenerateParams) (Config, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	cfg := Default()
	cfg.Grid.Width, cfg.Grid.Height = p.Width, p.Height
	cfg.Sim.Seed = p.Seed

	g := core.NewGrid(p.Width, p.Height)
	for x := 0; x < p.Width; x++ {
		for y := 0; y < p.Height; y++ {
			if rng.Float64() < p.ObstacleDensity {
				g.Block(core.Node{X: x, Y: y})
			}
		}
	}
	region := largestRegion(g)
	for x := 0; x < p.Width; x++ {
		for y := 0; y < p.Height; y++ {
			n := core.Node{X: x, Y: y}
			if g.Free(n) && !region[n] {
				g.Block(n)
			}
		}
	}
	for x := 0; x < p.Width; x++ {
		for y := 0; y < p.Height; y++ {
			if n := (core.Node{X: x, Y: y}); !g.Free(n) {
				cfg.Grid.Obstacles = append(cfg.Grid.Obstacles, [2]int{x, y})
			}
		}
	}

	// Deterministic cell order before shuffling.
	var free []core.Node
	for x := 0; x < p.Width; x++ {
		for y := 0; y < p.Height; y++ {
			if n := (core.Node{X: x, Y: y}); region[n] {
				free = append(free, n)
			}
		}
	}
	need := p.Vehicles + p.Jobs + p.Warehouses
	if need > len(free) {
		return Config{}, fmt.Errorf("scenario needs %d free cells, grid has %d", need, len(free))
	}
	perm := rng.Perm(len(free))
	next := 0
	take := func() core.Node {
		n := free[perm[next]]
		next++
		return n
	}

	trucks := int(p.TruckRatio * float64(p.Vehicles))
	for i := 0; i < p.Vehicles; i++ {
		class := "car"
		if i < trucks {
			class = "truck"
		}
		n := take()
		cfg.Vehicles = append(cfg.Vehicles, VehicleConfig{Class: class, X: n.X, Y: n.Y})
	}
	for i := 0; i < p.Jobs; i++ {
		n := take()
		cfg.Jobs = append(cfg.Jobs, JobConfig{
			X:        n.X,
			Y:        n.Y,
			Value:    1 + rng.Intn(9),
			Priority: core.PriorityHigh + rng.Intn(3),
		})
	}
	for i := 0; i < p.Warehouses; i++ {
		n := take()
		cfg.Warehouses = append(cfg.Warehouses, WarehouseConfig{X: n.X, Y: n.Y})
	}

	// One-shot planning sends every vehicle to a distinct random cell.
	goals := rng.Perm(len(free))
	for i, v := range cfg.Vehicles {
		goal := free[goals[i]]
		cfg.Planner.Agents = append(cfg.Planner.Agents, AgentConfig{
			Start: [2]int{v.X, v.Y},
			Goal:  [2]int{goal.X, goal.Y},
		})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("generated scenario invalid: %w", err)
	}
	return cfg, nil
}

// largestRegion returns the biggest 4-connected set of free cells.
func largestRegion(g *core.Grid) map[core.Node]bool {
	seen := make(map[core.Node]bool)
	var best map[core.Node]bool
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Height; y++ {
			start := core.Node{X: x, Y: y}
			if !g.Free(start) || seen[start] {
				continue
			}
			region := map[core.Node]bool{start: true}
			seen[start] = true
			queue := []core.Node{start}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for _, s := range g.Neighbors(cur, 0) {
					if !seen[s.Node] {
						seen[s.Node] = true
						region[s.Node] = true
						queue = append(queue, s.Node)
					}
				}
			}
			if len(region) > len(best) {
				best = region
			}
		}
	}
	return best
}
