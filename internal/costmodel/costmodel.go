// Package costmodel turns the raw trace of a step into a cost graph: one
// entry per operation with its output shapes, compute time and the
// persistent memory it populated.
package costmodel

import (
	"sort"
	"strings"
	"time"

	"github.com/vk/burstcluster/internal/trace"
)

// OutputInfo describes one output tensor of an operation.
type OutputInfo struct {
	DType string `yaml:"dtype"`
	Shape []int  `yaml:"shape,flow"`
	Bytes int64  `yaml:"bytes"`
}

// Node is the cost of one operation.
type Node struct {
	Name    string       `yaml:"name"`
	Device  string       `yaml:"device"`
	Kind    string       `yaml:"kind"`
	Outputs []OutputInfo `yaml:"outputs,omitempty"`
	// ComputeCost is the summed execution time in microseconds.
	ComputeCost            int64 `yaml:"compute_cost"`
	HostPersistentMemory   int64 `yaml:"host_persistent_memory"`
	DevicePersistentMemory int64 `yaml:"device_persistent_memory"`
	Executions             int   `yaml:"executions"`
}

// CostGraph is the ordered set of cost entries of one run.
type CostGraph struct {
	Nodes []*Node `yaml:"nodes"`
}

// KindInfo tells the builder which operator kinds create resources.
type KindInfo interface {
	IsResourceCreator(kind string) bool
}

// IsInternal reports whether a node name belongs to executor bookkeeping:
// the name, or any path component of it, starts with an underscore.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "_") || strings.Contains(name, "/_")
}

// Build aggregates a step trace by node name, in first-execution order.
func Build(stats *trace.StepStats, kinds KindInfo) *CostGraph {
	g := &CostGraph{}
	if stats == nil {
		return g
	}
	byName := make(map[string]*Node)
	for _, rec := range stats.Sorted() {
		n, ok := byName[rec.NodeName]
		if !ok {
			n = &Node{Name: rec.NodeName, Device: rec.Device, Kind: rec.Kind}
			byName[rec.NodeName] = n
			g.Nodes = append(g.Nodes, n)
		}

		n.ComputeCost += max(rec.Elapsed.Microseconds(), 0)
		n.Executions += max(rec.Executions, 1)
		n.Outputs = outputInfos(rec.Outputs)

		if kinds != nil && kinds.IsResourceCreator(rec.Kind) {
			continue
		}
		var written int64
		for _, w := range rec.Writes {
			written += w.Bytes
		}
		if rec.OnHost {
			n.HostPersistentMemory = max(n.HostPersistentMemory, written)
		} else {
			n.DevicePersistentMemory = max(n.DevicePersistentMemory, written)
		}
	}
	return g
}

func outputInfos(outs []trace.Output) []OutputInfo {
	if len(outs) == 0 {
		return nil
	}
	sorted := append([]trace.Output{}, outs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })
	infos := make([]OutputInfo, len(sorted))
	for i, o := range sorted {
		infos[i] = OutputInfo{DType: o.DType, Shape: append([]int{}, o.Shape...), Bytes: o.Bytes}
	}
	return infos
}

// Merge folds extra graphs into dst. Names dst lacks are appended; for
// names present in both the larger persistent-memory figures win.
func Merge(dst *CostGraph, extra ...*CostGraph) {
	index := make(map[string]*Node, len(dst.Nodes))
	for _, n := range dst.Nodes {
		index[n.Name] = n
	}
	for _, src := range extra {
		if src == nil {
			continue
		}
		for _, n := range src.Nodes {
			if have, ok := index[n.Name]; ok {
				have.HostPersistentMemory = max(have.HostPersistentMemory, n.HostPersistentMemory)
				have.DevicePersistentMemory = max(have.DevicePersistentMemory, n.DevicePersistentMemory)
				continue
			}
			c := n.clone()
			dst.Nodes = append(dst.Nodes, c)
			index[c.Name] = c
		}
	}
}

// Node finds an entry by name.
func (g *CostGraph) Node(name string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Names lists every entry name in order.
func (g *CostGraph) Names() []string {
	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	return names
}

// External returns the entries that are not executor bookkeeping.
func (g *CostGraph) External() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if !IsInternal(n.Name) {
			out = append(out, n)
		}
	}
	return out
}

// ClampCompute caps every compute cost at limit.
func (g *CostGraph) ClampCompute(limit time.Duration) {
	us := max(limit.Microseconds(), 0)
	for _, n := range g.Nodes {
		n.ComputeCost = min(max(n.ComputeCost, 0), us)
	}
}

// WithoutTimings returns a copy with the run-dependent fields zeroed and the
// entries sorted by name, suitable for comparing two runs.
func (g *CostGraph) WithoutTimings() *CostGraph {
	c := g.Clone()
	for _, n := range c.Nodes {
		n.ComputeCost = 0
		n.Executions = 0
	}
	sort.Slice(c.Nodes, func(i, j int) bool { return c.Nodes[i].Name < c.Nodes[j].Name })
	return c
}

// Clone deep-copies the graph.
func (g *CostGraph) Clone() *CostGraph {
	c := &CostGraph{Nodes: make([]*Node, len(g.Nodes))}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.clone()
	}
	return c
}

func (n *Node) clone() *Node {
	c := *n
	c.Outputs = make([]OutputInfo, len(n.Outputs))
	for i, o := range n.Outputs {
		o.Shape = append([]int{}, o.Shape...)
		c.Outputs[i] = o
	}
	if len(n.Outputs) == 0 {
		c.Outputs = nil
	}
	return &c
}
