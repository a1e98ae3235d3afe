// Package cluster is the single-machine execution harness: it provisions a
// bounded worker pool, binds a graph, runs it under a deadline and turns the
// resulting trace into a cost graph.
//
// A Cluster is not safe for concurrent Run calls; its mutex only keeps its
// own bookkeeping consistent.
package cluster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/burstcluster/internal/config"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/localsession"
	"github.com/vk/burstcluster/internal/optimizer"
	"github.com/vk/burstcluster/internal/session"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tracestream"
	"github.com/vk/burstcluster/internal/watchdog"
	"github.com/vk/burstcluster/internal/workerpool"
)

// Cluster owns one worker pool, one session and every resource created on
// it.
type Cluster struct {
	mu    sync.Mutex
	state State

	factory         session.SessionFactory
	kernels         *kernels.Registry
	publisher       tracestream.Publisher
	ownsPublisher   bool
	recorder        CostRecorder
	recorderLabel   string
	shutdownGrace   time.Duration
	maxTraceRecords int

	disableOptimizer bool
	optimizer        optimizer.Optimizer

	deadline   time.Duration
	numWorkers int
	numDevices int
	pool       *workerpool.Pool
	sess       session.Session
	exec       executor.Executor

	bound            *graphspec.GraphSpec
	boundFingerprint string
	initCosts        *costmodel.CostGraph
	runners          *queueRunners
	orphans          []*watchdog.Orphan
}

// New creates a cluster in the Created state.
func New(opts ...Option) *Cluster {
	c := &Cluster{
		state:           Created,
		factory:         &localsession.SessionFactory{},
		kernels:         kernels.Default(),
		publisher:       tracestream.Noop{},
		shutdownGrace:   config.DefaultShutdownGrace,
		maxTraceRecords: config.DefaultMaxTraceRecords,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates and provisions a cluster from cfg. When cfg names a
// trace stream, the cluster connects to it and closes it on Shutdown.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, status.Wrap(status.InvalidArgument, err, "invalid cluster config")
	}
	base := []Option{WithShutdownGrace(cfg.ShutdownGrace), WithMaxTraceRecords(cfg.MaxTraceRecords)}
	c := New(append(base, opts...)...)

	if cfg.TraceStreamURL != "" {
		pub, err := tracestream.Dial(ctx, cfg.TraceStreamURL, tracestream.Options{})
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "trace stream")
		}
		c.publisher = pub
		c.ownsPublisher = true
	}

	c.DisableOptimizer(cfg.DisableOptimizer)
	if err := c.Provision(ctx, cfg.Deadline, cfg.NumWorkers, cfg.NumDevices); err != nil {
		if c.ownsPublisher {
			_ = c.publisher.Close()
		}
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Cluster) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DisableOptimizer turns graph rewriting off or on. The setting is read by
// Provision; later calls do not affect a provisioned cluster.
func (c *Cluster) DisableOptimizer(disable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableOptimizer = disable
}

// Provision allocates the worker pool and the session and records the
// per-run deadline.
func (c *Cluster) Provision(ctx context.Context, deadline time.Duration, numWorkers, numDevices int) error {
	logger := ctxlog.FromContext(ctx).With("component", "cluster")
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Created:
	case ShutDown:
		return status.Errorf(status.FailedPrecondition, "cluster has been shut down")
	default:
		return status.Errorf(status.AlreadyExists, "cluster is already provisioned")
	}
	if deadline <= 0 {
		return status.Errorf(status.InvalidArgument, "deadline must be positive, got %s", deadline)
	}

	pool, err := workerpool.New(numWorkers, numDevices)
	if err != nil {
		return err
	}
	sess, err := c.factory.NewSession(ctx, session.Config{
		Pool:            pool,
		Kernels:         c.kernels,
		MaxTraceRecords: c.maxTraceRecords,
	})
	if err != nil {
		_ = pool.Close()
		return status.Wrap(status.Unavailable, err, "failed to create session")
	}
	exec, err := sess.GetExecutor()
	if err != nil {
		return errors.Join(status.Wrap(status.Unavailable, err, "failed to get executor"), sess.Close(ctx))
	}

	c.deadline = deadline
	c.numWorkers = numWorkers
	c.numDevices = numDevices
	c.pool = pool
	c.sess = sess
	c.exec = exec
	c.optimizer = optimizer.New(c.kernels, !c.disableOptimizer)
	if err := c.transition(Provisioned); err != nil {
		return err
	}

	logger.Info("Cluster provisioned",
		"deadline", deadline,
		"workers", numWorkers,
		"devices", numDevices,
		"optimizer", c.optimizer.Enabled(),
	)
	return nil
}

// DeviceNames lists the provisioned devices in canonical long form: the CPU
// first, then every GPU by index.
func (c *Cluster) DeviceNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		return c.pool.Topology().Names()
	}
	return devices.Topology{NumGPUs: c.numDevices}.Names()
}

// Shutdown stops queue runners and releases every resource, the session and
// the pool. While an execution abandoned at its deadline is still running,
// Shutdown asks it to abort and fails with Unavailable; the cluster stays
// usable for a later Shutdown.
func (c *Cluster) Shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("component", "cluster")
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Created, ShutDown:
		return nil
	}

	if c.runners != nil {
		c.runners.Stop(ctx, c.shutdownGrace)
		c.runners = nil
	}

	if outstanding := c.pruneOrphans(); outstanding > 0 {
		logger.Warn("Executions abandoned at their deadline are still running, requesting abort", "count", outstanding)
		c.sess.Abort(ctx)
		return status.Errorf(status.Unavailable,
			"%d execution(s) abandoned at the deadline are still running; retry Shutdown once they drain", outstanding)
	}

	err := c.sess.Close(ctx)
	if c.ownsPublisher {
		err = errors.Join(err, c.publisher.Close())
	}
	c.bound = nil
	c.initCosts = nil
	if terr := c.transition(ShutDown); terr != nil {
		return errors.Join(err, terr)
	}
	logger.Info("Cluster shut down")
	return err
}

// pruneOrphans forgets finished orphans and returns how many remain. The
// caller holds c.mu.
func (c *Cluster) pruneOrphans() int {
	c.orphans = watchdog.Prune(c.orphans)
	return len(c.orphans)
}

func (c *Cluster) adopt(ctx context.Context, orphan *watchdog.Orphan) {
	if orphan == nil {
		return
	}
	ctxlog.FromContext(ctx).Warn("Execution abandoned at its deadline", "label", orphan.Label, "deadline", c.deadline)
	c.orphans = append(c.orphans, orphan)
}
