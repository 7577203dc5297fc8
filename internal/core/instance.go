package core

import (
	"errors"
	"fmt"
)

// Instance is a fleet routing problem: grid, fleet, job pool and warehouses.
type Instance struct {
	Grid       *Grid
	Vehicles   []*Vehicle
	Jobs       []*Job
	Warehouses []*Warehouse
}

// NewInstance creates an empty instance on a grid.
func NewInstance(g *Grid) *Instance {
	return &Instance{Grid: g}
}

// Validate checks instance consistency.
func (inst *Instance) Validate() error {
	if inst.Grid == nil {
		return errors.New("instance has no grid")
	}
	occupied := make(map[Node]VehicleID)
	for _, v := range inst.Vehicles {
		if !inst.Grid.Free(v.Pos) {
			return fmt.Errorf("vehicle %d starts on blocked cell %v", v.ID, v.Pos)
		}
		if other, ok := occupied[v.Pos]; ok {
			return fmt.Errorf("vehicles %d and %d share start %v", other, v.ID, v.Pos)
		}
		occupied[v.Pos] = v.ID
	}
	for _, j := range inst.Jobs {
		if !inst.Grid.Free(j.Pos) {
			return fmt.Errorf("job %d on blocked cell %v", j.ID, j.Pos)
		}
		if j.Priority < PriorityHigh || j.Priority > PriorityLow {
			return fmt.Errorf("job %d has priority %d outside [1,3]", j.ID, j.Priority)
		}
	}
	for _, w := range inst.Warehouses {
		if !inst.Grid.Free(w.Pos) {
			return fmt.Errorf("warehouse %d on blocked cell %v", w.ID, w.Pos)
		}
	}
	return nil
}

// NearestWarehouse returns the warehouse closest to pos by Manhattan distance.
func (inst *Instance) NearestWarehouse(pos Node) *Warehouse {
	var best *Warehouse
	bestDist := 0
	for _, w := range inst.Warehouses {
		d := Manhattan(pos, w.Pos)
		if best == nil || d < bestDist {
			best, bestDist = w, d
		}
	}
	return best
}

// RemoveJob drops a job from the pool.
func (inst *Instance) RemoveJob(id JobID) {
	for i, j := range inst.Jobs {
		if j.ID == id {
			inst.Jobs = append(inst.Jobs[:i], inst.Jobs[i+1:]...)
			return
		}
	}
}
