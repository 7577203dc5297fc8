package algo

import (
	"log"

	"github.com/elektrokombinacija/fleet-routing/internal/core"
)

// NodeInfo summarizes a constraint-tree node for observers.
type NodeInfo struct {
	Seq         uint64
	Depth       int
	Cost        float64
	Horizon     int
	Constraints int
}

// Observer is the interface for observing CBS execution.
type Observer interface {
	// OnNodeExpanded is called when a CBS node is popped from the frontier.
	OnNodeExpanded(node NodeInfo)

	// OnConflictDetected is called with the conflict the node branches on.
	OnConflictDetected(node NodeInfo, conflict *Conflict)

	// OnSolutionFound is called once with the returned solution.
	OnSolutionFound(solution *core.Solution)
}

// LogObserver traces CBS execution to a logger.
type LogObserver struct {
	logger *log.Logger
}

// NewLogObserver creates a tracing observer. A nil logger means log.Default().
func NewLogObserver(logger *log.Logger) *LogObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnNodeExpanded(node NodeInfo) {
	o.logger.Printf("[DEBUG] cbs expand #%d depth=%d cost=%.0f T=%d constraints=%d",
		node.Seq, node.Depth, node.Cost, node.Horizon, node.Constraints)
}

func (o *LogObserver) OnConflictDetected(node NodeInfo, conflict *Conflict) {
	o.logger.Printf("[DEBUG] cbs #%d branches on %v", node.Seq, conflict)
}

func (o *LogObserver) OnSolutionFound(solution *core.Solution) {
	o.logger.Printf("[DEBUG] cbs solved: soc=%.0f makespan=%d expansions=%d",
		solution.SumOfCosts(), solution.Makespan, solution.Expansions)
}

func (n *ctNode) info() NodeInfo {
	return NodeInfo{
		Seq:         n.seq,
		Depth:       n.depth,
		Cost:        n.cost,
		Horizon:     n.horizon,
		Constraints: n.constraints.Len(),
	}
}
