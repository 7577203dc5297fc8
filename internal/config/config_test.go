package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elektrokombinacija/fleet-routing/internal/algo"
	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

const sampleConfig = `
[grid]
rows = [
  "#.####",
  "......",
]

[[vehicles]]
class = "truck"
x = 1
y = 0
load = 2

[[vehicles]]
class = "car"
x = 1
y = 5

[[jobs]]
x = 1
y = 3
value = 4
priority = 1

[[warehouses]]
x = 0
y = 1

[planner]
solver = "cbs"
max_expansions = 500

[[planner.agents]]
start = [1, 0]
goal = [1, 5]

[[planner.agents]]
start = [1, 5]
goal = [1, 0]

[sim]
strategy = "random"
seed = 7
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Planner.MaxExpansions != 500 || cfg.Sim.Strategy != "random" || cfg.Sim.Seed != 7 {
		t.Errorf("Explicit keys not applied: %+v %+v", cfg.Planner, cfg.Sim)
	}
	if cfg.Sim.MaxSteps != 500 || cfg.Planner.Fallback != "prioritized" {
		t.Errorf("Defaults not kept for missing keys: %+v %+v", cfg.Planner, cfg.Sim)
	}

	inst, err := cfg.Instance()
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if inst.Grid.Free(core.Node{X: 0, Y: 0}) || !inst.Grid.Free(core.Node{X: 0, Y: 1}) {
		t.Error("Rows not applied to grid")
	}
	if len(inst.Vehicles) != 2 || inst.Vehicles[0].Class != core.Truck || inst.Vehicles[0].Load != 2 {
		t.Errorf("Unexpected vehicles: %+v", inst.Vehicles)
	}
	if inst.Vehicles[1].ID != 2 || inst.Jobs[0].ID != 1 || inst.Warehouses[0].ID != 1 {
		t.Error("IDs must follow file order from 1")
	}

	starts, goals := cfg.Agents()
	if len(starts) != 2 || starts[0] != (core.Node{X: 1, Y: 0}) || goals[1] != (core.Node{X: 1, Y: 0}) {
		t.Errorf("Unexpected agents %v -> %v", starts, goals)
	}

	primary, fallback, err := cfg.Solvers()
	if err != nil {
		t.Fatal(err)
	}
	if primary.Name() != "CBS" || fallback.Name() != "Prioritized" {
		t.Errorf("Unexpected solvers %s/%s", primary.Name(), fallback.Name())
	}
	if primary.(*algo.CBS).Observer != nil {
		t.Error("Tracing must be off unless requested")
	}

	cfg.Planner.Trace = true
	primary, _, err = cfg.Solvers()
	if err != nil {
		t.Fatal(err)
	}
	if primary.(*algo.CBS).Observer == nil {
		t.Error("Expected a trace observer on CBS")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[grid]\nwidth = 3\nheight = 3\ncolour = 1\n", "unknown keys"},
		{"bad class", "[[vehicles]]\nclass = \"bike\"\n", "unknown vehicle class"},
		{"blocked start", "[grid]\nwidth = 3\nheight = 3\nobstacles = [[0, 0]]\n[[vehicles]]\nclass = \"car\"\n", "blocked"},
		{"shared start", "[[vehicles]]\nclass = \"car\"\n[[vehicles]]\nclass = \"truck\"\n", "share start"},
		{"bad priority", "[[jobs]]\nx = 1\ny = 1\nvalue = 2\npriority = 4\n", "priority 4"},
		{"bad solver", "[planner]\nsolver = \"greedy\"\n", "unknown solver"},
		{"bad strategy", "[sim]\nstrategy = \"greedy\"\n", "unknown allocation strategy"},
		{"no warehouse", "[[vehicles]]\nclass = \"car\"\n[[jobs]]\nx = 2\ny = 2\nvalue = 1\npriority = 1\n", "warehouse"},
		{"syntax", "[grid\n", "decode config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Grid.Obstacles = [][2]int{{2, 2}}
	cfg.Vehicles = []VehicleConfig{{Class: "car", X: 0, Y: 0}}
	cfg.Jobs = []JobConfig{{X: 4, Y: 4, Value: 3, Priority: 2}}
	cfg.Warehouses = []WarehouseConfig{{X: 0, Y: 9}}

	path := filepath.Join(t.TempDir(), "saved.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BuildGrid().Free(core.Node{X: 2, Y: 2}) {
		t.Error("Obstacle lost in round trip")
	}
	if len(loaded.Jobs) != 1 || loaded.Jobs[0] != cfg.Jobs[0] {
		t.Errorf("Jobs changed: %+v", loaded.Jobs)
	}
}
