// Package main generates fleet scenarios for benchmarks.
// Generates deterministic TOML scenarios with configurable parameters.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/elektrokombinacija/fleet-routing/internal/config"
)

func main() {
	seed := flag.Int64("seed", 42, "Random seed for deterministic generation")
	vehicles := flag.Int("vehicles", 5, "Number of vehicles")
	gridWidth := flag.Int("width", 20, "Grid width")
	gridHeight := flag.Int("height", 20, "Grid height")
	jobs := flag.Int("jobs", 10, "Number of jobs")
	warehouses := flag.Int("warehouses", 1, "Number of warehouses")
	truckRatio := flag.Float64("trucks", 0.4, "Fraction of vehicles that are trucks")
	obstacles := flag.Float64("obstacles", 0.1, "Obstacle density (0-1)")
	outputDir := flag.String("output", "testdata", "Output directory")
	scalingMode := flag.Bool("scaling", false, "Generate scaling scenarios (2, 4, 8, 16, 32 vehicles)")

	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	var params []config.GenerateParams
	if *scalingMode {
		for _, size := range []int{2, 4, 8, 16, 32} {
			// Grid size scales with sqrt of vehicles
			gridSize := int(math.Ceil(math.Sqrt(float64(size)) * 4))
			if gridSize < 10 {
				gridSize = 10
			}
			params = append(params, config.GenerateParams{
				Seed:            *seed,
				Width:           gridSize,
				Height:          gridSize,
				ObstacleDensity: *obstacles,
				Vehicles:        size,
				TruckRatio:      *truckRatio,
				Jobs:            size * 2, // 2 jobs per vehicle
				Warehouses:      *warehouses,
			})
		}
	} else {
		params = append(params, config.GenerateParams{
			Seed:            *seed,
			Width:           *gridWidth,
			Height:          *gridHeight,
			ObstacleDensity: *obstacles,
			Vehicles:        *vehicles,
			TruckRatio:      *truckRatio,
			Jobs:            *jobs,
			Warehouses:      *warehouses,
		})
	}

	for _, p := range params {
		cfg, err := config.Generate(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating scenario: %v\n", err)
			continue
		}

		name := fmt.Sprintf("fleet_%d_%dx%d_%d.toml", p.Vehicles, p.Width, p.Height, p.Seed)
		filename := filepath.Join(*outputDir, name)
		if err := config.Save(filename, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing scenario %s: %v\n", filename, err)
			continue
		}

		fmt.Printf("Generated: %s (%d vehicles, %d jobs, %dx%d grid)\n",
			filename, p.Vehicles, p.Jobs, p.Width, p.Height)
	}
}
