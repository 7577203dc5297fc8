package core

// JobID is a unique job identifier.
type JobID int

// Priority classes run from 1 (most urgent) to 3 (least urgent).
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// Job is a delivery site with remaining work.
type Job struct {
	ID       JobID
	Pos      Node
	Value    int // Remaining work
	Priority int
	Waiting  int // Steps spent in the pool
}

// NewJob creates a job.
func NewJob(id JobID, pos Node, value, priority int) *Job {
	return &Job{ID: id, Pos: pos, Value: value, Priority: priority}
}

// DoWork reduces remaining value and reports completion.
func (j *Job) DoWork(work int) bool {
	j.Value -= work
	if j.Value < 0 {
		j.Value = 0
	}
	return j.Done()
}

// Done returns true once no work remains.
func (j *Job) Done() bool {
	return j.Value <= 0
}

// MoreUrgent orders jobs by ascending priority class, then descending value.
func MoreUrgent(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Value > b.Value
}

// Warehouse is a restocking point.
type Warehouse struct {
	ID  int
	Pos Node
}
