// Package resources tracks the named stateful resources (variables, lookup
// tables, queues) that outlive a single step on one provisioned cluster.
//
// # Thread-Safety
//
// Registry is safe for concurrent use. Kernels running in parallel may create
// and initialize entries while the cluster inspects them.
package resources

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/status"
)

// Kind is the class of a resource.
type Kind string

const (
	KindVariable Kind = "variable"
	KindTable    Kind = "hash_table"
	KindQueue    Kind = "fifo_queue"
)

// Entry is one tracked resource.
type Entry struct {
	Name        string
	Kind        Kind
	Handle      any
	Fingerprint string
	CreatedBy   string

	initialized   bool
	initializedBy string
}

// Registry maps resource names to executor-owned handles.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// LookupOrCreate returns the entry for name, calling create only if it does
// not exist yet. Asking for an existing name with a different kind or
// fingerprint is an InvalidArgument error. created reports whether create ran.
func (r *Registry) LookupOrCreate(
	ctx context.Context,
	name string,
	kind Kind,
	fingerprint string,
	createdBy string,
	create func() (any, error),
) (entry *Entry, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		if e.Kind != kind {
			return nil, false, status.Errorf(status.InvalidArgument,
				"resource %q already exists as %s, requested as %s", name, e.Kind, kind)
		}
		if e.Fingerprint != fingerprint {
			return nil, false, status.Errorf(status.InvalidArgument,
				"resource %q already exists with a different definition (created by %q)", name, e.CreatedBy)
		}
		return e, false, nil
	}

	handle, err := create()
	if err != nil {
		return nil, false, err
	}
	e := &Entry{Name: name, Kind: kind, Handle: handle, Fingerprint: fingerprint, CreatedBy: createdBy}
	r.entries[name] = e
	r.order = append(r.order, name)
	ctxlog.FromContext(ctx).Debug("Created resource.", "resource", name, "kind", kind, "createdBy", createdBy)
	return e, true, nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// MarkInitialized records that op populated the resource.
func (r *Registry) MarkInitialized(name, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return status.Errorf(status.NotFound, "resource %q does not exist", name)
	}
	e.initialized = true
	e.initializedBy = op
	return nil
}

// Initialized reports whether the resource exists and has been populated.
func (r *Registry) Initialized(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return ok && e.initialized
}

// InitializedBy returns the op that populated the resource.
func (r *Registry) InitializedBy(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || !e.initialized {
		return "", false
	}
	return e.initializedBy, true
}

// Names lists every resource, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Len is the number of tracked resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll closes every handle that implements io.Closer without forgetting
// the entries. Closing a queue wakes any blocked enqueue or dequeue.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]any, 0, len(r.order))
	for _, name := range r.order {
		handles = append(handles, r.entries[name].Handle)
	}
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ReleaseAll closes and forgets every resource in reverse creation order.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	order := r.order
	entries := r.entries
	r.order = nil
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		e := entries[order[i]]
		if c, ok := e.Handle.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error("Failed to release resource.", "resource", e.Name, "error", err)
				errs = append(errs, err)
				continue
			}
		}
		logger.Debug("Released resource.", "resource", e.Name, "kind", e.Kind)
	}
	return errors.Join(errs...)
}
