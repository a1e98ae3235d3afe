// Package executor defines the interface for running one step of a graph.
package executor

import (
	"context"

	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/vk/burstcluster/internal/trace"
)

// Step is one execution request: feed these values, compute these fetches,
// run these targets.
type Step struct {
	ID      string
	Graph   *graphspec.GraphSpec
	Feeds   map[string]tensor.Tensor
	Fetches []string
	Targets []string
}

// Result is what a completed step produced.
type Result struct {
	// Outputs is keyed by the fetch string exactly as requested.
	Outputs map[string]tensor.Tensor
	Stats   *trace.StepStats
}

// Executor runs steps against the resources of one session. It manages
// concurrency and dispatches kernels.
type Executor interface {
	Execute(ctx context.Context, step *Step) (*Result, error)
	// Abort tears down every step currently executing. Kernels blocked on a
	// queue observe the abort and return Cancelled.
	Abort(ctx context.Context)
	// Active reports the number of steps currently executing.
	Active() int
}
