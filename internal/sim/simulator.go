// Package sim drives a fleet through the job pool.
//
// Each tick the simulator:
// - reallocates vehicles to jobs when the pool changed
// - sends vehicles at or below half load to the nearest warehouse
// - routes the whole fleet jointly when any target changed
// - advances every vehicle one step and applies deliveries and restocks
// - retries failed planning rounds with a doubled search budget
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elektrokombinacija/fleet-routing/internal/algo"
	"github.com/elektrokombinacija/fleet-routing/internal/alloc"
	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

var (
	// ErrNoStrategy means the configuration carries no allocation strategy.
	ErrNoStrategy = errors.New("no allocation strategy configured")
	// ErrStalled means planning kept failing on an unchanged fleet state.
	ErrStalled = errors.New("planning stalled")
)

// Config configures a simulation run.
type Config struct {
	// Instance to simulate. Vehicles and jobs are mutated in place.
	Instance *core.Instance

	// Allocation strategy and its display name
	Strategy     alloc.Factory
	StrategyName string

	// Joint planner, and the planner tried when it fails
	Solver   algo.Solver
	Fallback algo.Solver

	// Tick limit
	MaxSteps int

	// Consecutive failed planning rounds tolerated before the run stalls.
	// Each failure doubles the expansion limit of a budgeted solver.
	MaxEscalations int

	// Random seed for reproducibility
	Seed int64

	// RunID tags log lines and recorded plans
	RunID string

	Logger   *log.Logger
	Recorder Recorder
}

// DefaultConfig returns default simulation configuration.
func DefaultConfig() Config {
	strategy, _ := alloc.ByName("hungarian")
	return Config{
		Strategy:       strategy,
		StrategyName:   "hungarian",
		Solver:         algo.NewCBS(2000),
		Fallback:       algo.NewPrioritized(),
		MaxSteps:       500,
		MaxEscalations: 5,
		Seed:           42,
	}
}

// PlanEvent describes one joint planning round.
type PlanEvent struct {
	RunID    string
	Step     int
	Strategy string
	Solver   string
	Solution *core.Solution
}

// Recorder persists planning rounds.
type Recorder interface {
	RecordPlan(ctx context.Context, ev PlanEvent) error
}

// Metrics collects metrics during simulation.
type Metrics struct {
	// Timing
	StartTime time.Time
	EndTime   time.Time
	Steps     int

	// Planning
	PlanningAttempts    int
	PlanningSuccesses   int
	FallbackPlans       int
	SolverFailures      int
	RejectedPlans       int // Solutions that still contained conflicts
	TotalExpansions     int
	TotalPlanningTimeMs float64
	Reallocations       int

	// Jobs
	JobsCompleted   int
	JobsRemaining   int
	PrioritisedTime int // Waiting time weighted by priority class
	Deliveries      int
	Restocks        int
}

// WaitWeight scales a completed job's waiting time by its priority class.
func WaitWeight(priority int) int {
	switch priority {
	case core.PriorityHigh:
		return 5
	case core.PriorityMedium:
		return 3
	default:
		return 1
	}
}

// Simulator runs the fleet scheduler.
type Simulator struct {
	mu sync.Mutex

	config Config
	logger *log.Logger
	rng    *rand.Rand

	// State
	step       int
	allocation alloc.Allocation
	reallocate bool
	replan     bool
	failures   int                          // Consecutive failed planning rounds
	routes     map[core.VehicleID]core.Path // Remaining moves, current cell excluded

	metrics Metrics
}

// NewSimulator creates a new simulation instance.
func NewSimulator(config Config) (*Simulator, error) {
	if config.Instance == nil {
		return nil, errors.New("simulation needs an instance")
	}
	if err := config.Instance.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instance: %w", err)
	}
	if config.Strategy == nil {
		return nil, ErrNoStrategy
	}
	if config.Solver == nil {
		config.Solver = algo.NewCBS(2000)
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultConfig().MaxSteps
	}
	if config.MaxEscalations <= 0 {
		config.MaxEscalations = DefaultConfig().MaxEscalations
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Simulator{
		config:     config,
		logger:     logger,
		rng:        rand.New(rand.NewSource(config.Seed)),
		reallocate: true,
		replan:     true,
		routes:     make(map[core.VehicleID]core.Path),
	}, nil
}

// Run executes the simulation until the job pool empties, MaxSteps is
// reached or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) (*Metrics, error) {
	s.mu.Lock()
	s.metrics.StartTime = time.Now()
	inst := s.config.Instance
	s.logger.Printf("[INFO] run %s: %d vehicles, %d jobs, %d warehouses, strategy=%s solver=%s",
		s.config.RunID, len(inst.Vehicles), len(inst.Jobs), len(inst.Warehouses),
		s.config.StrategyName, s.config.Solver.Name())
	s.mu.Unlock()

	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return s.finish(), fmt.Errorf("simulation interrupted at step %d: %w", s.Steps(), err)
		}
		if err := s.Step(ctx); err != nil {
			return s.finish(), err
		}
	}

	m := s.finish()
	s.logger.Printf("[INFO] run %s finished after %d steps: %d jobs done, %d left, prioritised time %d",
		s.config.RunID, m.Steps, m.JobsCompleted, m.JobsRemaining, m.PrioritisedTime)
	return m, nil
}

func (s *Simulator) finish() *Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EndTime = time.Now()
	s.metrics.Steps = s.step
	s.metrics.JobsRemaining = len(s.config.Instance.Jobs)
	m := s.metrics
	return &m
}

// Done reports whether the pool is empty or the step limit is reached.
func (s *Simulator) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.config.Instance.Jobs) == 0 || s.step >= s.config.MaxSteps
}

// Steps returns the number of ticks simulated so far.
func (s *Simulator) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Positions returns the current cell of every vehicle.
func (s *Simulator) Positions() map[core.VehicleID]core.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.VehicleID]core.Node, len(s.config.Instance.Vehicles))
	for _, v := range s.config.Instance.Vehicles {
		out[v.ID] = v.Pos
	}
	return out
}

// Step advances the simulation by one tick.
func (s *Simulator) Step(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.config.Instance
	if len(inst.Jobs) == 0 {
		return nil
	}

	if err := s.allocate(); err != nil {
		return err
	}
	s.assignTargets()

	if s.replan {
		if err := s.plan(ctx); err != nil {
			return err
		}
	}

	s.advance()

	for _, j := range inst.Jobs {
		j.Waiting++
	}
	s.step++
	return nil
}

// allocate recomputes the vehicle to job mapping when flagged.
func (s *Simulator) allocate() error {
	if !s.reallocate {
		return nil
	}
	a, err := s.config.Strategy(s.rng, s.config.Instance.Vehicles, s.config.Instance.Jobs)
	if err != nil {
		return fmt.Errorf("allocation at step %d: %w", s.step, err)
	}
	s.allocation = a.Allocation()
	s.reallocate = false
	s.metrics.Reallocations++

	var b strings.Builder
	for _, id := range sortedVehicleIDs(s.allocation) {
		fmt.Fprintf(&b, " %d->%d", id, s.allocation[id].ID)
	}
	s.logger.Printf("[INFO] step %d: %s allocation%s", s.step, a.Name(), b.String())
	return nil
}

// assignTargets gives every idle vehicle a warehouse or its allocated job,
// and drops targets whose job was finished by another vehicle.
func (s *Simulator) assignTargets() {
	inst := s.config.Instance
	for _, v := range inst.Vehicles {
		if v.Target != nil && v.Target.Kind == core.TargetJob && v.Target.Job.Done() {
			v.Target = nil
		}
		if v.Target != nil {
			continue
		}

		if v.NeedsResupply() {
			w := inst.NearestWarehouse(v.Pos)
			if w == nil {
				continue
			}
			v.Target = &core.Target{Kind: core.TargetWarehouse, Warehouse: w}
			v.Resupplying = true
		} else if j := s.allocation[v.ID]; j != nil && !j.Done() {
			v.Target = &core.Target{Kind: core.TargetJob, Job: j}
		} else {
			continue
		}
		s.replan = true
	}
}

// goals returns one distinct goal per vehicle. Vehicles sharing a target
// are spread to the nearest free cells around it in vehicle order.
func (s *Simulator) goals() ([]core.Node, error) {
	inst := s.config.Instance
	taken := make(map[core.Node]bool, len(inst.Vehicles))
	goals := make([]core.Node, len(inst.Vehicles))
	for i, v := range inst.Vehicles {
		want := v.Pos
		if v.Target != nil {
			want = v.Target.Pos()
		}
		g, ok := inst.Grid.Nearest(want, func(n core.Node) bool { return taken[n] })
		if !ok {
			return nil, fmt.Errorf("no free goal cell for vehicle %d near %v", v.ID, want)
		}
		taken[g] = true
		goals[i] = g
	}
	return goals, nil
}

// plan routes the whole fleet jointly, falling back to the secondary
// solver when the primary one fails. If both fail vehicles wait a tick and
// the next round runs with a doubled budget; once MaxEscalations rounds
// have failed in a row the run stalls.
func (s *Simulator) plan(ctx context.Context) error {
	inst := s.config.Instance
	starts := make([]core.Node, len(inst.Vehicles))
	for i, v := range inst.Vehicles {
		starts[i] = v.Pos
	}
	goals, err := s.goals()
	if err != nil {
		return err
	}

	started := time.Now()
	s.metrics.PlanningAttempts++
	solver := s.escalate(s.config.Solver)
	sol, err := s.solve(ctx, solver, starts, goals)
	if err != nil && ctx.Err() == nil && s.config.Fallback != nil {
		s.logger.Printf("[WARN] step %d: %s failed: %v; trying %s", s.step, solver.Name(), err, s.config.Fallback.Name())
		solver = s.config.Fallback
		sol, err = s.solve(ctx, solver, starts, goals)
		if err == nil {
			s.metrics.FallbackPlans++
		}
	}
	s.metrics.TotalPlanningTimeMs += float64(time.Since(started).Microseconds()) / 1000

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("planning at step %d: %w", s.step, ctxErr)
		}
		s.metrics.SolverFailures++
		s.failures++
		clear(s.routes)
		if s.failures > s.config.MaxEscalations {
			return fmt.Errorf("step %d after %d failed rounds: %w: %w", s.step, s.failures, ErrStalled, err)
		}
		s.logger.Printf("[ERROR] step %d: no joint route (round %d): %v", s.step, s.failures, err)
		return nil
	}

	s.failures = 0
	s.metrics.PlanningSuccesses++
	s.metrics.TotalExpansions += sol.Expansions
	for i, v := range inst.Vehicles {
		s.routes[v.ID] = append(core.Path(nil), sol.Paths[i][1:]...)
	}
	s.replan = false

	if s.config.Recorder != nil {
		ev := PlanEvent{
			RunID:    s.config.RunID,
			Step:     s.step,
			Strategy: s.config.StrategyName,
			Solver:   solver.Name(),
			Solution: sol,
		}
		if err := s.config.Recorder.RecordPlan(ctx, ev); err != nil {
			s.logger.Printf("[WARN] step %d: recording plan: %v", s.step, err)
		}
	}
	return nil
}

// solve runs one solver and rejects solutions that do not fit the fleet
// or still contain collisions.
func (s *Simulator) solve(ctx context.Context, solver algo.Solver, starts, goals []core.Node) (*core.Solution, error) {
	sol, err := solver.Solve(ctx, s.config.Instance.Grid, starts, goals)
	if err != nil {
		return nil, err
	}
	if len(sol.Paths) != len(starts) {
		s.metrics.RejectedPlans++
		return nil, fmt.Errorf("%s returned %d paths for %d vehicles", solver.Name(), len(sol.Paths), len(starts))
	}
	if conflicts := algo.FindAllConflicts(sol.Paths); len(conflicts) > 0 {
		s.metrics.RejectedPlans++
		return nil, fmt.Errorf("%s returned %d conflicts, first %v", solver.Name(), len(conflicts), conflicts[0])
	}
	return sol, nil
}

// escalate raises a budgeted solver's expansion limit after failed rounds.
func (s *Simulator) escalate(solver algo.Solver) algo.Solver {
	b, ok := solver.(algo.Budgeted)
	if !ok || s.failures == 0 || b.ExpansionLimit() <= 0 {
		return solver
	}
	limit := b.ExpansionLimit() << s.failures
	s.logger.Printf("[INFO] step %d: retrying %s with %d expansions", s.step, solver.Name(), limit)
	return b.WithExpansionLimit(limit)
}

// advance moves every routed vehicle one step and settles arrivals.
func (s *Simulator) advance() {
	inst := s.config.Instance
	for _, v := range inst.Vehicles {
		if route := s.routes[v.ID]; len(route) > 0 {
			v.Pos = route[0]
			s.routes[v.ID] = route[1:]
		}
	}

	for _, v := range inst.Vehicles {
		if v.Target == nil {
			continue
		}
		if v.Pos != v.Target.Pos() {
			if len(s.routes[v.ID]) == 0 {
				s.replan = true // Parked short of a shared target
			}
			continue
		}
		s.arrive(v)
		s.replan = true
	}
}

func (s *Simulator) arrive(v *core.Vehicle) {
	target := v.Target
	v.Target = nil
	if target.Kind == core.TargetWarehouse {
		v.Restock()
		s.metrics.Restocks++
		return
	}

	j := target.Job
	if v.Deliver(j) > 0 {
		s.metrics.Deliveries++
	}
	if !j.Done() {
		return
	}
	s.metrics.JobsCompleted++
	s.metrics.PrioritisedTime += j.Waiting * WaitWeight(j.Priority)
	s.config.Instance.RemoveJob(j.ID)
	s.reallocate = true
	s.logger.Printf("[INFO] step %d: vehicle %d completed job %d (priority %d, waited %d)",
		s.step, v.ID, j.ID, j.Priority, j.Waiting)
}

// Metrics returns current simulation metrics.
func (s *Simulator) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// ExportMetrics writes metrics to a JSON file.
func (s *Simulator) ExportMetrics(path string) error {
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Result is the final output of a simulation run.
type Result struct {
	RunID    string  `json:"run_id"`
	Strategy string  `json:"strategy"`
	Solver   string  `json:"solver"`
	Metrics  Metrics `json:"metrics"`
	Success  bool    `json:"success"`
	Error    string  `json:"error,omitempty"`
}

// RunSimulation is a convenience function to run a complete simulation.
func RunSimulation(ctx context.Context, config Config) (*Result, error) {
	sim, err := NewSimulator(config)
	if err != nil {
		return nil, err
	}

	metrics, err := sim.Run(ctx)
	result := &Result{
		RunID:    config.RunID,
		Strategy: config.StrategyName,
		Solver:   sim.config.Solver.Name(),
		Success:  err == nil && metrics.JobsRemaining == 0,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if metrics != nil {
		result.Metrics = *metrics
	}
	return result, err
}

// sortedVehicleIDs returns vehicle IDs in ascending order.
func sortedVehicleIDs(a alloc.Allocation) []core.VehicleID {
	ids := make([]core.VehicleID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
