// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file rejects cycles that do not pass through loop control.
package graphspec

import (
	"sort"
	"strings"

	"github.com/vk/burstcluster/internal/status"
)

// loopKinds are the operator kinds through which a cycle may close: a
// NextIteration feeding back into a Merge.
var loopKinds = map[string]bool{"Merge": true, "NextIteration": true}

// checkCycles finds the strongly connected components over data and control
// inputs and rejects every cycle that contains no loop-control operation.
// References must already be resolved.
func (g *GraphSpec) checkCycles() error {
	t := &tarjan{
		g:       g,
		index:   make(map[string]int, len(g.ops)),
		lowlink: make(map[string]int, len(g.ops)),
		onStack: make(map[string]bool, len(g.ops)),
	}
	for _, op := range g.ops {
		if _, seen := t.index[op.Name]; seen {
			continue
		}
		if err := t.visit(op.Name); err != nil {
			return err
		}
	}
	return nil
}

type tarjan struct {
	g       *GraphSpec
	next    int
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
}

func (t *tarjan) visit(name string) error {
	t.index[name] = t.next
	t.lowlink[name] = t.next
	t.next++
	t.stack = append(t.stack, name)
	t.onStack[name] = true

	refs, err := t.g.index[name].Refs()
	if err != nil {
		return err
	}
	selfLoop := false
	for _, ref := range refs {
		dep := ref.Node
		if dep == name {
			selfLoop = true
		}
		if _, seen := t.index[dep]; !seen {
			if err := t.visit(dep); err != nil {
				return err
			}
			t.lowlink[name] = min(t.lowlink[name], t.lowlink[dep])
		} else if t.onStack[dep] {
			t.lowlink[name] = min(t.lowlink[name], t.index[dep])
		}
	}

	if t.lowlink[name] != t.index[name] {
		return nil
	}
	var component []string
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[top] = false
		component = append(component, top)
		if top == name {
			break
		}
	}
	if len(component) == 1 && !selfLoop {
		return nil
	}
	for _, member := range component {
		if loopKinds[t.g.index[member].Kind] {
			return nil
		}
	}
	sort.Strings(component)
	return status.Errorf(status.InvalidArgument,
		"cycle through %s has no Merge or NextIteration operation", strings.Join(component, ", "))
}
