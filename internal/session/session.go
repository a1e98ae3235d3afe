// Package session defines the core interfaces for creating and managing an
// execution session. It abstracts away the details of local vs. remote execution.
package session

import (
	"context"

	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/workerpool"
)

// Config carries what a session needs from its cluster.
type Config struct {
	Pool    *workerpool.Pool
	Kernels *kernels.Registry
	// MaxTraceRecords bounds the per-step trace; zero keeps every record.
	MaxTraceRecords int
}

// SessionFactory creates an execution Session. Different implementations can
// support various backends, such as local or distributed execution.
type SessionFactory interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
}

// Session owns the stateful resources of a cluster and the executor that
// runs steps against them.
type Session interface {
	GetExecutor() (executor.Executor, error)
	// Resources is the registry every step of this session shares.
	Resources() *resources.Registry
	// Abort tears down every step in flight. It does not wait for them.
	Abort(ctx context.Context)
	// Outstanding reports how many steps are still executing.
	Outstanding() int
	// Close releases any resources held by the session. It accepts a context
	// to allow for graceful cleanup operations.
	Close(ctx context.Context) error
}
