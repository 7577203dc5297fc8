// Package config loads fleet scenarios and planner settings from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/elektrokombinacija/fleet-routing/internal/algo"
	"github.com/elektrokombinacija/fleet-routing/internal/alloc"
	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

type Config struct {
	Grid       GridConfig        `toml:"grid"`
	Vehicles   []VehicleConfig   `toml:"vehicles"`
	Jobs       []JobConfig       `toml:"jobs"`
	Warehouses []WarehouseConfig `toml:"warehouses"`
	Planner    PlannerConfig     `toml:"planner"`
	Sim        SimConfig         `toml:"sim"`
	Store      StoreConfig       `toml:"store"`
	Path       string            `toml:"-"`
}

// GridConfig describes the map either as a size plus obstacle cells or as
// text rows where '#' is an obstacle. Rows win when both are given.
type GridConfig struct {
	Width     int      `toml:"width"`
	Height    int      `toml:"height"`
	Obstacles [][2]int `toml:"obstacles"`
	Rows      []string `toml:"rows"`
}

type VehicleConfig struct {
	Class string `toml:"class"`
	X     int    `toml:"x"`
	Y     int    `toml:"y"`
	Load  int    `toml:"load"`
}

type JobConfig struct {
	X        int `toml:"x"`
	Y        int `toml:"y"`
	Value    int `toml:"value"`
	Priority int `toml:"priority"`
}

type WarehouseConfig struct {
	X int `toml:"x"`
	Y int `toml:"y"`
}

// AgentConfig is one start/goal pair for one-shot planning.
type AgentConfig struct {
	Start [2]int `toml:"start"`
	Goal  [2]int `toml:"goal"`
}

type PlannerConfig struct {
	Solver        string        `toml:"solver"`
	Fallback      string        `toml:"fallback"`
	MaxExpansions int           `toml:"max_expansions"`
	Trace         bool          `toml:"trace"` // Log every CBS expansion
	Agents        []AgentConfig `toml:"agents"`
}

type SimConfig struct {
	Strategy string `toml:"strategy"`
	Seed     int64  `toml:"seed"`
	MaxSteps int    `toml:"max_steps"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Grid: GridConfig{Width: 10, Height: 10},
		Planner: PlannerConfig{
			Solver:        "cbs",
			Fallback:      "prioritized",
			MaxExpansions: 2000,
		},
		Sim: SimConfig{
			Strategy: "hungarian",
			Seed:     42,
			MaxSteps: 500,
		},
	}
}

// Load reads and validates a TOML file on top of Default.
func Load(path string) (Config, error) {
	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(bytes), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %s: %w", resolved, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config file %s: unknown keys %s", resolved, strings.Join(keys, ", "))
	}
	cfg.Path = resolved

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", resolved, err)
	}
	return cfg, nil
}

// Save writes cfg as TOML.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode config file %s: %w", path, err)
	}
	return f.Close()
}

func node(p [2]int) core.Node {
	return core.Node{X: p[0], Y: p[1]}
}

// BuildGrid constructs the configured grid.
func (c Config) BuildGrid() *core.Grid {
	if len(c.Grid.Rows) > 0 {
		return core.NewGridFromRows(c.Grid.Rows)
	}
	g := core.NewGrid(c.Grid.Width, c.Grid.Height)
	for _, o := range c.Grid.Obstacles {
		g.Block(node(o))
	}
	return g
}

// Validate checks bounds, names and cell overlaps.
func (c Config) Validate() error {
	var errs []error
	if len(c.Grid.Rows) == 0 && (c.Grid.Width <= 0 || c.Grid.Height <= 0) {
		errs = append(errs, fmt.Errorf("grid size %dx%d must be positive", c.Grid.Width, c.Grid.Height))
	}
	g := c.BuildGrid()
	for _, o := range c.Grid.Obstacles {
		if len(c.Grid.Rows) == 0 && !g.InBounds(node(o)) {
			errs = append(errs, fmt.Errorf("obstacle %v out of bounds", node(o)))
		}
	}

	starts := make(map[core.Node]int)
	for i, v := range c.Vehicles {
		class, err := core.ParseVehicleClass(v.Class)
		if err != nil {
			errs = append(errs, fmt.Errorf("vehicle %d: %w", i, err))
			continue
		}
		pos := core.Node{X: v.X, Y: v.Y}
		if !g.Free(pos) {
			errs = append(errs, fmt.Errorf("vehicle %d starts on blocked or missing cell %v", i, pos))
		}
		if j, ok := starts[pos]; ok {
			errs = append(errs, fmt.Errorf("vehicles %d and %d share start %v", j, i, pos))
		}
		starts[pos] = i
		if limit := class.Capabilities().MaxLoad; v.Load < 0 || v.Load > limit {
			errs = append(errs, fmt.Errorf("vehicle %d load %d outside [0,%d]", i, v.Load, limit))
		}
	}

	for i, j := range c.Jobs {
		pos := core.Node{X: j.X, Y: j.Y}
		if !g.Free(pos) {
			errs = append(errs, fmt.Errorf("job %d on blocked or missing cell %v", i, pos))
		}
		if j.Value <= 0 {
			errs = append(errs, fmt.Errorf("job %d value %d must be positive", i, j.Value))
		}
		if j.Priority < core.PriorityHigh || j.Priority > core.PriorityLow {
			errs = append(errs, fmt.Errorf("job %d priority %d outside [1,3]", i, j.Priority))
		}
	}
	for i, w := range c.Warehouses {
		if pos := (core.Node{X: w.X, Y: w.Y}); !g.Free(pos) {
			errs = append(errs, fmt.Errorf("warehouse %d on blocked or missing cell %v", i, pos))
		}
	}
	if len(c.Jobs) > 0 && len(c.Vehicles) > 0 && len(c.Warehouses) == 0 {
		errs = append(errs, errors.New("jobs need at least one warehouse to restock from"))
	}

	if _, err := NewSolver(c.Planner.Solver, c.Planner.MaxExpansions); err != nil {
		errs = append(errs, err)
	}
	if c.Planner.Fallback != "" {
		if _, err := NewSolver(c.Planner.Fallback, c.Planner.MaxExpansions); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
	}
	if c.Planner.MaxExpansions < 0 {
		errs = append(errs, fmt.Errorf("max_expansions %d must not be negative", c.Planner.MaxExpansions))
	}
	for i, a := range c.Planner.Agents {
		if !g.Free(node(a.Start)) || !g.Free(node(a.Goal)) {
			errs = append(errs, fmt.Errorf("agent %d: start %v or goal %v not free", i, node(a.Start), node(a.Goal)))
		}
	}

	if _, err := alloc.ByName(c.Sim.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Sim.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max_steps %d must be positive", c.Sim.MaxSteps))
	}
	return errors.Join(errs...)
}

// NewSolver resolves a solver name.
func NewSolver(name string, maxExpansions int) (algo.Solver, error) {
	switch strings.ToLower(name) {
	case "cbs", "":
		return algo.NewCBS(maxExpansions), nil
	case "prioritized":
		return algo.NewPrioritized(), nil
	case "joint":
		return algo.NewJointAStar(maxExpansions), nil
	default:
		return nil, fmt.Errorf("unknown solver %q", name)
	}
}

// Solvers returns the primary and, if configured, fallback solvers.
func (c Config) Solvers() (primary, fallback algo.Solver, err error) {
	primary, err = NewSolver(c.Planner.Solver, c.Planner.MaxExpansions)
	if err != nil {
		return nil, nil, err
	}
	if cbs, ok := primary.(*algo.CBS); ok && c.Planner.Trace {
		cbs.Observer = algo.NewLogObserver(nil)
	}
	if c.Planner.Fallback != "" {
		if fallback, err = NewSolver(c.Planner.Fallback, c.Planner.MaxExpansions); err != nil {
			return nil, nil, err
		}
	}
	return primary, fallback, nil
}

// Instance builds a fresh fleet instance. Vehicle, job and warehouse IDs
// follow file order starting at 1.
func (c Config) Instance() (*core.Instance, error) {
	inst := core.NewInstance(c.BuildGrid())
	for i, vc := range c.Vehicles {
		class, err := core.ParseVehicleClass(vc.Class)
		if err != nil {
			return nil, fmt.Errorf("vehicle %d: %w", i, err)
		}
		v := core.NewVehicle(core.VehicleID(i+1), class, core.Node{X: vc.X, Y: vc.Y})
		v.Load = vc.Load
		inst.Vehicles = append(inst.Vehicles, v)
	}
	for i, jc := range c.Jobs {
		inst.Jobs = append(inst.Jobs, core.NewJob(core.JobID(i+1), core.Node{X: jc.X, Y: jc.Y}, jc.Value, jc.Priority))
	}
	for i, wc := range c.Warehouses {
		inst.Warehouses = append(inst.Warehouses, &core.Warehouse{ID: i + 1, Pos: core.Node{X: wc.X, Y: wc.Y}})
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// Agents returns the configured one-shot planning starts and goals.
func (c Config) Agents() (starts, goals []core.Node) {
	for _, a := range c.Planner.Agents {
		starts = append(starts, node(a.Start))
		goals = append(goals, node(a.Goal))
	}
	return starts, goals
}
