// Package localsession provides a concrete implementation of the session.Session
// and session.SessionFactory interfaces for local, in-process execution.
package localsession

import (
	"context"
	"errors"
	"sync"

	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/localexecutor"
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/session"
	"github.com/vk/burstcluster/internal/status"
)

// SessionFactory implements session.SessionFactory for local runs.
type SessionFactory struct{}

// NewSession creates and configures a new local session.
func (f *SessionFactory) NewSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	logger := ctxlog.FromContext(ctx)
	if cfg.Pool == nil {
		return nil, status.Errorf(status.InvalidArgument, "session needs a worker pool")
	}
	reg := cfg.Kernels
	if reg == nil {
		reg = kernels.Default()
	}

	res := resources.New()
	exec := localexecutor.New(cfg.Pool, reg, res, cfg.MaxTraceRecords)
	logger.Debug("Local session created.", "workers", cfg.Pool.NumWorkers(), "devices", len(cfg.Pool.Topology().Names()))

	return &Session{
		executor:  exec,
		resources: res,
		closePool: cfg.Pool.Close,
	}, nil
}

// Session implements session.Session for local runs.
type Session struct {
	executor  *localexecutor.Executor
	resources *resources.Registry
	closePool func() error

	closeOnce sync.Once
	closeErr  error
}

// GetExecutor returns the executor that was created and wired up by the factory.
func (s *Session) GetExecutor() (executor.Executor, error) {
	return s.executor, nil
}

// Resources returns the session's resource registry.
func (s *Session) Resources() *resources.Registry {
	return s.resources
}

// Abort cancels every in-flight step.
func (s *Session) Abort(ctx context.Context) {
	s.executor.Abort(ctx)
}

// Outstanding is the number of steps still executing.
func (s *Session) Outstanding() int {
	return s.executor.Active()
}

// Close releases every resource and closes the worker pool. It is safe to
// call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		logger := ctxlog.FromContext(ctx)
		logger.Debug("Closing local session.", "resources", s.resources.Len())
		s.closeErr = errors.Join(s.resources.ReleaseAll(ctx), s.closePool())
	})
	return s.closeErr
}
