package core

// VehicleID is a unique vehicle identifier.
type VehicleID int

// TargetKind distinguishes what a vehicle is heading to.
type TargetKind int

const (
	TargetJob       TargetKind = iota // Deliver to a job site
	TargetWarehouse                   // Restock at a warehouse
)

// Target is where a vehicle is currently heading.
type Target struct {
	Kind      TargetKind
	Job       *Job
	Warehouse *Warehouse
}

// Pos returns the cell of the target.
func (t *Target) Pos() Node {
	if t.Kind == TargetWarehouse {
		return t.Warehouse.Pos
	}
	return t.Job.Pos
}

// Vehicle is an agent in the fleet.
type Vehicle struct {
	ID          VehicleID
	Class       VehicleClass
	Pos         Node
	Load        int
	Resupplying bool
	Target      *Target // nil while idle
}

// NewVehicle creates an empty vehicle at pos.
func NewVehicle(id VehicleID, class VehicleClass, pos Node) *Vehicle {
	return &Vehicle{ID: id, Class: class, Pos: pos}
}

// MaxLoad returns the carrying capacity of the vehicle's class.
func (v *Vehicle) MaxLoad() int {
	return v.Class.Capabilities().MaxLoad
}

// EffectivePos is where the vehicle will be when it is free for a new job:
// its resupply target while restocking, its current cell otherwise.
func (v *Vehicle) EffectivePos() Node {
	if v.Resupplying && v.Target != nil {
		return v.Target.Pos()
	}
	return v.Pos
}

// NeedsResupply returns true at or below half capacity.
func (v *Vehicle) NeedsResupply() bool {
	return float64(v.Load) <= float64(v.MaxLoad())*0.5
}

// Restock fills the vehicle to capacity and ends resupplying.
func (v *Vehicle) Restock() {
	v.Load = v.MaxLoad()
	v.Resupplying = false
}

// Deliver hands as much load as the job still needs and returns the amount.
func (v *Vehicle) Deliver(j *Job) int {
	work := v.Load
	if j.Value < work {
		work = j.Value
	}
	v.Load -= work
	j.DoWork(work)
	return work
}
