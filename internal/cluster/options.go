package cluster

import (
	"context"
	"time"

	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/session"
	"github.com/vk/burstcluster/internal/tracestream"
)

// Option configures a Cluster at construction.
type Option func(*Cluster)

// WithSessionFactory replaces the local session factory.
func WithSessionFactory(f session.SessionFactory) Option {
	return func(c *Cluster) { c.factory = f }
}

// WithKernels replaces the default kernel registry.
func WithKernels(reg *kernels.Registry) Option {
	return func(c *Cluster) { c.kernels = reg }
}

// WithPublisher sets where run summaries are published. The cluster does
// not close a publisher it was given.
func WithPublisher(p tracestream.Publisher) Option {
	return func(c *Cluster) { c.publisher = p }
}

// CostRecorder persists the cost graph of every successful run.
type CostRecorder interface {
	SaveRun(ctx context.Context, label, runID string, g *costmodel.CostGraph) error
}

// WithCostRecorder stores every successful run's cost graph under label.
func WithCostRecorder(r CostRecorder, label string) Option {
	return func(c *Cluster) {
		c.recorder = r
		c.recorderLabel = label
	}
}

// WithShutdownGrace bounds how long Shutdown waits for queue runners.
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Cluster) { c.shutdownGrace = d }
}

// WithMaxTraceRecords bounds the trace kept for one step.
func WithMaxTraceRecords(n int) Option {
	return func(c *Cluster) { c.maxTraceRecords = n }
}
