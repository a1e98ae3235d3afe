package coststore

import (
	"context"
	"sort"

	"github.com/vk/burstcluster/internal/costmodel"
)

// NodeDelta is the change of one operation between two runs. Before or
// After is nil when the operation exists in only one of them, as happens
// when a rewrite removes or introduces it.
type NodeDelta struct {
	Name   string
	Before *costmodel.Node
	After  *costmodel.Node

	ComputeCost            int64
	HostPersistentMemory   int64
	DevicePersistentMemory int64
}

// Added reports whether the operation exists only in the later run.
func (d NodeDelta) Added() bool { return d.Before == nil }

// Removed reports whether the operation exists only in the earlier run.
func (d NodeDelta) Removed() bool { return d.After == nil }

// Compare loads two stored runs and diffs them.
func (s *Store) Compare(ctx context.Context, beforeRunID, afterRunID string) ([]NodeDelta, error) {
	before, err := s.LoadRun(ctx, beforeRunID)
	if err != nil {
		return nil, err
	}
	after, err := s.LoadRun(ctx, afterRunID)
	if err != nil {
		return nil, err
	}
	return Diff(before, after), nil
}

// Diff returns one delta per non-internal operation present in either
// graph, sorted by name.
func Diff(before, after *costmodel.CostGraph) []NodeDelta {
	byName := make(map[string]*NodeDelta)
	get := func(name string) *NodeDelta {
		d, ok := byName[name]
		if !ok {
			d = &NodeDelta{Name: name}
			byName[name] = d
		}
		return d
	}
	for _, n := range before.External() {
		get(n.Name).Before = n
	}
	for _, n := range after.External() {
		get(n.Name).After = n
	}

	deltas := make([]NodeDelta, 0, len(byName))
	for _, d := range byName {
		var b, a costmodel.Node
		if d.Before != nil {
			b = *d.Before
		}
		if d.After != nil {
			a = *d.After
		}
		d.ComputeCost = a.ComputeCost - b.ComputeCost
		d.HostPersistentMemory = a.HostPersistentMemory - b.HostPersistentMemory
		d.DevicePersistentMemory = a.DevicePersistentMemory - b.DevicePersistentMemory
		deltas = append(deltas, *d)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Name < deltas[j].Name })
	return deltas
}
