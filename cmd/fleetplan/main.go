// Command fleetplan plans conflict-free fleet routes and simulates job delivery.
//
// Usage:
//
//	fleetplan plan -config fleet.toml
//	fleetplan simulate -config fleet.toml [-metrics out.json]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/elektrokombinacija/fleet-routing/internal/algo"
	"github.com/elektrokombinacija/fleet-routing/internal/alloc"
	"github.com/elektrokombinacija/fleet-routing/internal/config"
	"github.com/elektrokombinacija/fleet-routing/internal/core"
	"github.com/elektrokombinacija/fleet-routing/internal/sim"
	"github.com/elektrokombinacija/fleet-routing/internal/store/sqlite"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s plan|simulate -config <file.toml> [flags]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "fleet.toml", "Scenario configuration file")
	metricsPath := fs.String("metrics", "", "Write simulation metrics JSON to this file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Abort after this long")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("[ERROR] parse flags: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	switch command {
	case "plan":
		err = runPlan(ctx, cfg, store)
	case "simulate":
		err = runSimulate(ctx, cfg, store, *metricsPath)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("[ERROR] %s: %v", command, err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (*sqlite.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newRun registers a run in the store, or just mints an ID without one.
func newRun(ctx context.Context, store *sqlite.Store, run sqlite.Run) (string, error) {
	if store == nil {
		return uuid.NewString(), nil
	}
	created, err := store.CreateRun(ctx, run)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// storeRecorder persists simulator planning rounds as epochs.
type storeRecorder struct {
	store *sqlite.Store
}

func (r storeRecorder) RecordPlan(ctx context.Context, ev sim.PlanEvent) error {
	return r.store.RecordEpoch(ctx, sqlite.Epoch{
		RunID:      ev.RunID,
		Step:       ev.Step,
		Strategy:   ev.Strategy,
		Solver:     ev.Solver,
		SumOfCosts: ev.Solution.SumOfCosts(),
		Makespan:   ev.Solution.Makespan,
		Expansions: ev.Solution.Expansions,
		Paths:      ev.Solution.Paths,
	})
}

func runPlan(ctx context.Context, cfg config.Config, store *sqlite.Store) error {
	starts, goals := cfg.Agents()
	if len(starts) == 0 {
		return fmt.Errorf("%s defines no [[planner.agents]]", cfg.Path)
	}
	primary, fallback, err := cfg.Solvers()
	if err != nil {
		return err
	}
	runID, err := newRun(ctx, store, sqlite.Run{Command: "plan", ConfigPath: cfg.Path, Solver: primary.Name()})
	if err != nil {
		return err
	}

	grid := cfg.BuildGrid()
	fmt.Printf("=== Fleet routing: %d agents on %dx%d grid (run %s) ===\n", len(starts), grid.Width, grid.Height, runID)

	solvers := []algo.Solver{primary}
	if fallback != nil {
		solvers = append(solvers, fallback)
	}
	for _, solver := range solvers {
		fmt.Printf("\n  %s: ", solver.Name())
		start := time.Now()
		sol, err := solver.Solve(ctx, grid, starts, goals)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("No solution (%v)\n", err)
			continue
		}

		fmt.Printf("Feasible=%v, SumOfCosts=%.0f, Makespan=%d, Expansions=%d, Conflicts=%d, Time=%v\n",
			sol.Feasible, sol.SumOfCosts(), sol.Makespan, sol.Expansions, len(algo.FindAllConflicts(sol.Paths)), elapsed)
		printPaths(sol.Paths)

		if store != nil {
			rec := storeRecorder{store}
			if err := rec.RecordPlan(ctx, sim.PlanEvent{RunID: runID, Solver: solver.Name(), Solution: sol}); err != nil {
				return err
			}
		}
		return nil
	}
	return algo.ErrInfeasible
}

func printPaths(paths []core.Path) {
	for i, p := range paths {
		fmt.Printf("    agent %d:", i)
		for _, n := range p {
			fmt.Printf(" %v", n)
		}
		fmt.Println()
	}
}

func runSimulate(ctx context.Context, cfg config.Config, store *sqlite.Store, metricsPath string) error {
	inst, err := cfg.Instance()
	if err != nil {
		return err
	}
	primary, fallback, err := cfg.Solvers()
	if err != nil {
		return err
	}

	simCfg := sim.DefaultConfig()
	simCfg.Instance = inst
	simCfg.StrategyName = cfg.Sim.Strategy
	if simCfg.Strategy, err = alloc.ByName(cfg.Sim.Strategy); err != nil {
		return err
	}
	simCfg.Solver = primary
	simCfg.Fallback = fallback
	simCfg.MaxSteps = cfg.Sim.MaxSteps
	simCfg.Seed = cfg.Sim.Seed
	simCfg.RunID, err = newRun(ctx, store, sqlite.Run{
		Command:    "simulate",
		ConfigPath: cfg.Path,
		Strategy:   cfg.Sim.Strategy,
		Solver:     primary.Name(),
		Seed:       cfg.Sim.Seed,
	})
	if err != nil {
		return err
	}
	if store != nil {
		simCfg.Recorder = storeRecorder{store}
	}

	simulator, err := sim.NewSimulator(simCfg)
	if err != nil {
		return err
	}
	m, err := simulator.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("=== Simulation %s ===\n", simCfg.RunID)
	fmt.Printf("Steps: %d, Jobs: %d done / %d left\n", m.Steps, m.JobsCompleted, m.JobsRemaining)
	fmt.Printf("Prioritised task time: %d\n", m.PrioritisedTime)
	fmt.Printf("Planning: %d attempts, %d ok, %d fallback, %d failed, %d expansions, %.1fms\n",
		m.PlanningAttempts, m.PlanningSuccesses, m.FallbackPlans, m.SolverFailures,
		m.TotalExpansions, m.TotalPlanningTimeMs)

	if metricsPath != "" {
		if err := simulator.ExportMetrics(metricsPath); err != nil {
			return fmt.Errorf("export metrics: %w", err)
		}
	}
	return nil
}
