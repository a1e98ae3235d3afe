// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines GraphSpec, the immutable set of operations handed to the
// cluster, together with structural validation and fingerprinting.
package graphspec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// GraphSpec is an immutable dataflow graph. Operations returned by its
// accessors must not be modified; use Clone to derive a new graph.
type GraphSpec struct {
	ops   []*Operation
	index map[string]*Operation
}

// New builds a graph from operations in the given order. Duplicate names are
// reported by Validate; lookups resolve to the first occurrence.
func New(ops ...*Operation) *GraphSpec {
	g := &GraphSpec{ops: ops, index: make(map[string]*Operation, len(ops))}
	for _, op := range ops {
		if _, exists := g.index[op.Name]; !exists {
			g.index[op.Name] = op
		}
	}
	return g
}

// Ops returns the operations in definition order.
func (g *GraphSpec) Ops() []*Operation {
	return g.ops
}

// Len is the number of operations.
func (g *GraphSpec) Len() int {
	return len(g.ops)
}

// Lookup finds an operation by name.
func (g *GraphSpec) Lookup(name string) (*Operation, bool) {
	op, ok := g.index[name]
	return op, ok
}

// Names returns operation names in definition order.
func (g *GraphSpec) Names() []string {
	names := make([]string, len(g.ops))
	for i, op := range g.ops {
		names[i] = op.Name
	}
	return names
}

// Clone returns a deep copy.
func (g *GraphSpec) Clone() *GraphSpec {
	ops := make([]*Operation, len(g.ops))
	for i, op := range g.ops {
		ops[i] = op.Clone()
	}
	return New(ops...)
}

// KindChecker reports whether an operator kind is known to the executor.
type KindChecker interface {
	Known(kind string) bool
}

// Validate checks names, input references, operator kinds and that every
// cycle passes through loop control. A nil checker
// skips the kind check.
func (g *GraphSpec) Validate(kinds KindChecker) error {
	if g == nil {
		return status.Errorf(status.InvalidArgument, "graph is nil")
	}
	seen := make(map[string]struct{}, len(g.ops))
	for _, op := range g.ops {
		if !nodeid.ValidName(op.Name) {
			return status.Errorf(status.InvalidArgument, "invalid operation name %q", op.Name)
		}
		if _, dup := seen[op.Name]; dup {
			return status.Errorf(status.InvalidArgument, "duplicate operation name %q", op.Name)
		}
		seen[op.Name] = struct{}{}

		if op.Kind == "" {
			return status.Errorf(status.InvalidArgument, "operation %q has no kind", op.Name)
		}
		if kinds != nil && !kinds.Known(op.Kind) {
			return status.Errorf(status.InvalidArgument, "operation %q has unknown kind %q", op.Name, op.Kind)
		}
	}

	for _, op := range g.ops {
		refs, err := op.Refs()
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if _, ok := g.index[ref.Node]; !ok {
				return status.Errorf(status.InvalidArgument, "operation %q has dangling input %q", op.Name, ref.String())
			}
		}
	}
	return g.checkCycles()
}

// Fingerprint is a stable hash of the graph's structure: names, kinds,
// inputs, devices and attributes. Definition order does not matter.
func (g *GraphSpec) Fingerprint() string {
	if g == nil {
		return ""
	}
	h := sha256.New()
	for _, name := range g.sortedNames() {
		fmt.Fprintf(h, "%s\n", OpFingerprint(g.index[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OpFingerprint hashes a single operation.
func OpFingerprint(op *Operation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%s|%s", op.Name, op.Kind, op.Device, strings.Join(op.Inputs, ","))

	keys := make([]string, 0, len(op.Attrs))
	for k := range op.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := op.Attrs[k]
		encoded, err := ctyjson.Marshal(v, v.Type())
		if err != nil {
			encoded = []byte(v.GoString())
		}
		fmt.Fprintf(&sb, "|%s=%s", k, encoded)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (g *GraphSpec) sortedNames() []string {
	names := make([]string, 0, len(g.index))
	for name := range g.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
