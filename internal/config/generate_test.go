package config

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/elektrokombinacija/fleet-routing/internal/algo"
	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

func TestGenerate(t *testing.T) {
	params := GenerateParams{
		Seed:            3,
		Width:           8,
		Height:          8,
		ObstacleDensity: 0.2,
		Vehicles:        4,
		TruckRatio:      0.5,
		Jobs:            6,
		Warehouses:      1,
	}

	cfg, err := Generate(params)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	again, err := Generate(params)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, again) {
		t.Error("Same seed produced different scenarios")
	}

	inst, err := cfg.Instance()
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if len(inst.Vehicles) != 4 || len(inst.Jobs) != 6 || len(inst.Warehouses) != 1 {
		t.Fatalf("Unexpected counts: %d vehicles, %d jobs, %d warehouses",
			len(inst.Vehicles), len(inst.Jobs), len(inst.Warehouses))
	}
	trucks := 0
	for _, v := range inst.Vehicles {
		if v.Class == core.Truck {
			trucks++
		}
	}
	if trucks != 2 {
		t.Errorf("Expected 2 trucks, got %d", trucks)
	}

	// Everything sits in one connected region.
	for _, j := range inst.Jobs {
		_, cost := algo.SpaceTimeAStar(inst.Grid, inst.Vehicles[0].Pos, j.Pos, algo.Unconstrained)
		if math.IsInf(cost, 1) {
			t.Errorf("Job %d unreachable from vehicle 1", j.ID)
		}
	}

	path := filepath.Join(t.TempDir(), "gen.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Generated scenario does not load: %v", err)
	}
}

func TestGenerate_TooSmall(t *testing.T) {
	if _, err := Generate(GenerateParams{Seed: 1, Width: 2, Height: 2, Vehicles: 3, Jobs: 3}); err == nil {
		t.Error("Expected error when cells run out")
	}
}
