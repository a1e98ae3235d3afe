// Package trace holds the raw per-operation records an executor emits for
// one step. The cost model is built from these records.
package trace

import (
	"sort"
	"sync"
	"time"
)

// Output describes one tensor produced by an operation.
type Output struct {
	Slot  int    `yaml:"slot"`
	DType string `yaml:"dtype"`
	Shape []int  `yaml:"shape,flow"`
	Bytes int64  `yaml:"bytes"`
}

// ResourceWrite records bytes stored into a stateful resource.
type ResourceWrite struct {
	Resource string `yaml:"resource"`
	Bytes    int64  `yaml:"bytes"`
}

// NodeExecStats is the record of one operation execution. Executions is
// greater than one only when the recorder folded repeated executions of the
// same node into a single record.
type NodeExecStats struct {
	NodeName   string          `yaml:"node"`
	Kind       string          `yaml:"kind"`
	Device     string          `yaml:"device"`
	Start      time.Time       `yaml:"start"`
	Elapsed    time.Duration   `yaml:"elapsed"`
	Executions int             `yaml:"executions"`
	OnHost     bool            `yaml:"on_host"`
	Outputs    []Output        `yaml:"outputs,omitempty"`
	Writes     []ResourceWrite `yaml:"writes,omitempty"`
}

// End is the completion time of the (last folded) execution.
func (n *NodeExecStats) End() time.Time {
	return n.Start.Add(n.Elapsed)
}

// StepStats is the full trace of one step.
type StepStats struct {
	StepID string           `yaml:"step_id"`
	Start  time.Time        `yaml:"start"`
	End    time.Time        `yaml:"end"`
	Nodes  []*NodeExecStats `yaml:"nodes"`
}

// Sorted returns the records ordered by start time.
func (s *StepStats) Sorted() []*NodeExecStats {
	out := append([]*NodeExecStats{}, s.Nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Recorder collects records concurrently. Once Limit records are held,
// further executions of an already-recorded node are folded into its latest
// record so that long-running loops do not grow the trace without bound.
type Recorder struct {
	mu     sync.Mutex
	stats  *StepStats
	latest map[string]*NodeExecStats
	limit  int
}

// NewRecorder starts a trace for the given step.
func NewRecorder(stepID string, limit int) *Recorder {
	return &Recorder{
		stats:  &StepStats{StepID: stepID, Start: time.Now()},
		latest: make(map[string]*NodeExecStats),
		limit:  limit,
	}
}

// Record adds one execution.
func (r *Recorder) Record(rec *NodeExecStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Executions == 0 {
		rec.Executions = 1
	}
	if prev, ok := r.latest[rec.NodeName]; ok && r.limit > 0 && len(r.stats.Nodes) >= r.limit {
		prev.Elapsed += rec.Elapsed
		prev.Executions += rec.Executions
		prev.Outputs = rec.Outputs
		prev.Writes = rec.Writes
		return
	}
	r.stats.Nodes = append(r.stats.Nodes, rec)
	r.latest[rec.NodeName] = rec
}

// Finish stamps the end time and returns the collected trace.
func (r *Recorder) Finish() *StepStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.End = time.Now()
	return r.stats
}
