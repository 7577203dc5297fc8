// Package core defines domain models for fleet routing.
package core

import "fmt"

// Node is a grid cell. Value equality, usable as a map key.
type Node struct {
	X, Y int
}

func (n Node) String() string {
	return fmt.Sprintf("(%d,%d)", n.X, n.Y)
}

// Manhattan returns the 4-connected grid distance between two nodes.
func Manhattan(a, b Node) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Adjacent reports whether b is a wait or a single unit step from a.
func Adjacent(a, b Node) bool {
	return Manhattan(a, b) <= 1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Path holds one node per time step, starting at time 0.
type Path []Node

// At returns the node occupied at time t. Agents hold their last node
// once the path is exhausted.
func (p Path) At(t int) (Node, bool) {
	if len(p) == 0 {
		return Node{}, false
	}
	if t < 0 {
		return p[0], true
	}
	if t >= len(p) {
		return p[len(p)-1], true
	}
	return p[t], true
}

// Last returns the final node of the path.
func (p Path) Last() Node {
	return p[len(p)-1]
}

// Valid reports whether every consecutive pair is a wait or a unit step.
func (p Path) Valid() bool {
	for i := 1; i < len(p); i++ {
		if !Adjacent(p[i-1], p[i]) {
			return false
		}
	}
	return true
}

// VehicleClass classifies vehicle capabilities.
type VehicleClass int

const (
	Car   VehicleClass = iota // Light: 1 unit of load, cheap per step
	Truck                     // Heavy: 3 units of load, double cost per step
)

func (c VehicleClass) String() string {
	return [...]string{"Car", "Truck"}[c]
}

// ParseVehicleClass maps a class name to its variant.
func ParseVehicleClass(s string) (VehicleClass, error) {
	switch s {
	case "car", "Car":
		return Car, nil
	case "truck", "Truck":
		return Truck, nil
	default:
		return 0, fmt.Errorf("unknown vehicle class %q", s)
	}
}

// Capability describes what a vehicle class can do.
type Capability struct {
	MaxLoad   int
	CostScale float64 // Multiplier per unit of distance in allocation costs
}

var capabilities = [...]Capability{
	Car:   {MaxLoad: 1, CostScale: 1},
	Truck: {MaxLoad: 3, CostScale: 2},
}

// Capabilities returns the capability table entry for the class.
func (c VehicleClass) Capabilities() Capability {
	return capabilities[c]
}
