// Package kernels holds the registry of operator kinds the local executor can
// run, and the reference kernel for each kind.
package kernels

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/resources"
)

// Flags describe how a kernel interacts with state and control flow.
type Flags uint16

const (
	// ResourceCreator kernels create a stateful resource and output its handle.
	ResourceCreator Flags = 1 << iota
	// Initializer kernels populate a resource and are run by Initialize.
	Initializer
	// Stateful kernels have side effects or are non-deterministic.
	Stateful
	// LoopControl kernels implement cyclic control flow.
	LoopControl
	// Source kernels take their value from attributes or feeds.
	Source
)

// ComputeFunc runs one execution of an operation.
type ComputeFunc func(kc *Context) error

// Kernel is the registered implementation of one operator kind.
type Kernel struct {
	Kind         string
	Flags        Flags
	ResourceKind resources.Kind
	Compute      ComputeFunc
}

// Has reports whether every flag in f is set.
func (k *Kernel) Has(f Flags) bool {
	return k.Flags&f == f
}

// Foldable reports whether the kernel is a pure function of its inputs.
func (k *Kernel) Foldable() bool {
	return k.Flags == 0
}

// Registry holds all the registered kernels.
type Registry struct {
	all map[string]*Kernel
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{all: make(map[string]*Kernel)}
}

// Default returns a registry with every reference kernel registered.
func Default() *Registry {
	r := New()
	registerArrayKernels(r)
	registerMathKernels(r)
	registerRandomKernels(r)
	registerStateKernels(r)
	registerQueueKernels(r)
	registerControlKernels(r)
	return r
}

// Register adds a kernel. Registering a kind twice is a programming error.
func (r *Registry) Register(k *Kernel) {
	if _, exists := r.all[k.Kind]; exists {
		panic(fmt.Sprintf("kernel for kind '%s' already registered", k.Kind))
	}
	slog.Debug("Registering kernel.", "kind", k.Kind)
	r.all[k.Kind] = k
}

// Lookup finds the kernel for a kind.
func (r *Registry) Lookup(kind string) (*Kernel, bool) {
	k, ok := r.all[kind]
	return k, ok
}

// Known reports whether a kind is registered.
func (r *Registry) Known(kind string) bool {
	_, ok := r.all[kind]
	return ok
}

// Kinds lists every registered kind, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.all))
	for k := range r.all {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IsResourceCreator reports whether a kind creates a stateful resource.
func (r *Registry) IsResourceCreator(kind string) bool {
	k, ok := r.all[kind]
	return ok && k.Has(ResourceCreator)
}

// IsInitializer reports whether an operation populates a resource as part of
// initialization: kernels flagged Initializer, or an Assign carrying
// `initializer = true`.
func (r *Registry) IsInitializer(op *graphspec.Operation) bool {
	k, ok := r.all[op.Kind]
	if !ok {
		return false
	}
	if k.Has(Initializer) {
		return true
	}
	if op.Kind == KindAssign {
		b, err := op.AttrBool("initializer", false)
		return err == nil && b
	}
	return false
}
