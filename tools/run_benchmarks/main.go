// Package main runs the fleet simulator over generated scenarios.
// Runs every solver and allocation strategy and collects metrics.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/elektrokombinacija/fleet-routing/internal/alloc"
	"github.com/elektrokombinacija/fleet-routing/internal/config"
	"github.com/elektrokombinacija/fleet-routing/internal/sim"
)

// BenchmarkResult stores results from a single simulation run.
type BenchmarkResult struct {
	Timestamp       string
	CommitHash      string
	GoVersion       string
	OS              string
	Arch            string
	Scenario        string
	NumVehicles     int
	NumJobs         int
	GridSize        string
	Solver          string
	Strategy        string
	RuntimeMs       float64
	Success         bool
	Steps           int
	JobsCompleted   int
	PrioritisedTime int
	FallbackPlans   int
	SolverFailures  int
	Expansions      int
}

// SolverMetrics holds per-configuration aggregated metrics.
type SolverMetrics struct {
	Name                 string
	TotalRuns            int
	Successes            int
	TotalRuntimeMs       float64
	TotalSteps           int
	TotalPrioritisedTime int
}

var (
	solvers    = []string{"cbs", "prioritized"}
	strategies = []string{"hungarian", "random"}
)

func getGitCommit() string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

func runScenario(ctx context.Context, cfg config.Config, solverName, strategy string, timeout time.Duration) *BenchmarkResult {
	result := &BenchmarkResult{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		CommitHash:  getGitCommit(),
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Scenario:    filepath.Base(cfg.Path),
		NumVehicles: len(cfg.Vehicles),
		NumJobs:     len(cfg.Jobs),
		GridSize:    fmt.Sprintf("%dx%d", cfg.Grid.Width, cfg.Grid.Height),
		Solver:      solverName,
		Strategy:    strategy,
	}

	inst, err := cfg.Instance()
	if err != nil {
		return result
	}
	solver, err := config.NewSolver(solverName, cfg.Planner.MaxExpansions)
	if err != nil {
		return result
	}
	factory, err := alloc.ByName(strategy)
	if err != nil {
		return result
	}

	simCfg := sim.DefaultConfig()
	simCfg.Instance = inst
	simCfg.Strategy = factory
	simCfg.StrategyName = strategy
	simCfg.Solver = solver
	simCfg.MaxSteps = cfg.Sim.MaxSteps
	simCfg.Seed = cfg.Sim.Seed
	simCfg.Logger = log.New(io.Discard, "", 0)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := sim.RunSimulation(runCtx, simCfg)
	result.RuntimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	if res == nil {
		return result
	}
	result.Success = err == nil && res.Success
	result.Steps = res.Metrics.Steps
	result.JobsCompleted = res.Metrics.JobsCompleted
	result.PrioritisedTime = res.Metrics.PrioritisedTime
	result.FallbackPlans = res.Metrics.FallbackPlans
	result.SolverFailures = res.Metrics.SolverFailures
	result.Expansions = res.Metrics.TotalExpansions
	return result
}

func writeCSV(results []*BenchmarkResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"timestamp", "commit_hash", "go_version", "os", "arch",
		"scenario", "num_vehicles", "num_jobs", "grid_size", "solver", "strategy",
		"runtime_ms", "success", "steps", "jobs_completed", "prioritised_time",
		"fallback_plans", "solver_failures", "expansions",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			r.Timestamp, r.CommitHash, r.GoVersion, r.OS, r.Arch,
			r.Scenario, fmt.Sprintf("%d", r.NumVehicles), fmt.Sprintf("%d", r.NumJobs),
			r.GridSize, r.Solver, r.Strategy,
			fmt.Sprintf("%.3f", r.RuntimeMs), fmt.Sprintf("%t", r.Success),
			fmt.Sprintf("%d", r.Steps), fmt.Sprintf("%d", r.JobsCompleted),
			fmt.Sprintf("%d", r.PrioritisedTime), fmt.Sprintf("%d", r.FallbackPlans),
			fmt.Sprintf("%d", r.SolverFailures), fmt.Sprintf("%d", r.Expansions),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(results []*BenchmarkResult) {
	metrics := make(map[string]*SolverMetrics)
	for _, r := range results {
		key := r.Solver + "/" + r.Strategy
		m, ok := metrics[key]
		if !ok {
			m = &SolverMetrics{Name: key}
			metrics[key] = m
		}
		m.TotalRuns++
		if r.Success {
			m.Successes++
			m.TotalRuntimeMs += r.RuntimeMs
			m.TotalSteps += r.Steps
			m.TotalPrioritisedTime += r.PrioritisedTime
		}
	}

	fmt.Println("\n=== BENCHMARK SUMMARY ===")
	fmt.Printf("%-24s %6s %8s %12s %10s %14s\n",
		"Solver/Strategy", "Runs", "Success", "Avg Time(ms)", "AvgSteps", "AvgPrioTime")
	fmt.Println(strings.Repeat("-", 78))

	var names []string
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := metrics[name]
		avgTime, avgSteps, avgPrio := 0.0, 0.0, 0.0
		if m.Successes > 0 {
			avgTime = m.TotalRuntimeMs / float64(m.Successes)
			avgSteps = float64(m.TotalSteps) / float64(m.Successes)
			avgPrio = float64(m.TotalPrioritisedTime) / float64(m.Successes)
		}
		fmt.Printf("%-24s %6d %8d %12.2f %10.1f %14.1f\n",
			m.Name, m.TotalRuns, m.Successes, avgTime, avgSteps, avgPrio)
	}
}

func main() {
	inputDir := flag.String("input", "testdata", "Directory containing scenario TOML files")
	outputFile := flag.String("output", "evidence/benchmark_results.csv", "Output CSV file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Timeout per simulation run")
	solverFilter := flag.String("solver", "", "Run only specific solvers (comma-separated)")
	strategyFilter := flag.String("strategy", "", "Run only specific strategies (comma-separated)")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	outputDir := filepath.Dir(*outputFile)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	files, err := filepath.Glob(filepath.Join(*inputDir, "*.toml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding scenario files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No scenario files found in %s\n", *inputDir)
		fmt.Fprintf(os.Stderr, "Run gen_instances first: go run ./tools/gen_instances -scaling -output testdata\n")
		os.Exit(1)
	}

	activeSolvers := solvers
	if *solverFilter != "" {
		activeSolvers = strings.Split(*solverFilter, ",")
	}
	activeStrategies := strategies
	if *strategyFilter != "" {
		activeStrategies = strings.Split(*strategyFilter, ",")
	}

	var results []*BenchmarkResult
	totalRuns := len(files) * len(activeSolvers) * len(activeStrategies)
	currentRun := 0

	fmt.Printf("Running benchmarks: %d scenarios x %d solvers x %d strategies = %d runs\n",
		len(files), len(activeSolvers), len(activeStrategies), totalRuns)
	fmt.Printf("Timeout per run: %v\n", *timeout)
	fmt.Println()

	ctx := context.Background()
	for _, file := range files {
		cfg, err := config.Load(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", file, err)
			continue
		}

		for _, solver := range activeSolvers {
			for _, strategy := range activeStrategies {
				currentRun++
				if *verbose {
					fmt.Printf("[%d/%d] %s / %s / %s ... ", currentRun, totalRuns, filepath.Base(file), solver, strategy)
				} else {
					fmt.Printf("\r[%d/%d] Running...", currentRun, totalRuns)
				}

				result := runScenario(ctx, cfg, solver, strategy, *timeout)
				results = append(results, result)

				if *verbose {
					if result.Success {
						fmt.Printf("OK (%.2fms, steps=%d)\n", result.RuntimeMs, result.Steps)
					} else {
						fmt.Printf("FAILED\n")
					}
				}
			}
		}
	}

	fmt.Println()

	if err := writeCSV(results, *outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing results: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Results written to: %s\n", *outputFile)

	printSummary(results)
}
