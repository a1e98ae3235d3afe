package cluster

import (
	"context"

	"github.com/google/uuid"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/watchdog"
)

// Initialize binds item's graph, runs its init ops once and starts its queue
// runners. Binding a graph that differs from the bound one releases every
// resource first, so they are re-created.
func (c *Cluster) Initialize(ctx context.Context, item *graphspec.RunRequest) error {
	logger := ctxlog.FromContext(ctx).With("component", "cluster")
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireState("initialize", Provisioned, Initialized); err != nil {
		return err
	}
	if outstanding := c.pruneOrphans(); outstanding > 0 {
		return status.Errorf(status.FailedPrecondition,
			"cannot initialize while %d execution(s) abandoned at the deadline are still running", outstanding)
	}
	if err := item.Validate(c.kernels); err != nil {
		return err
	}
	if err := c.checkDevices(item.Graph); err != nil {
		return err
	}

	if c.runners != nil {
		c.runners.Stop(ctx, c.shutdownGrace)
		c.runners = nil
	}

	if err := c.bind(ctx, item.Graph); err != nil {
		return err
	}

	initOps := c.initOps(item)
	switch {
	case len(initOps) == 0:
		logger.Debug("Graph has no init ops.")
	case c.alreadyInitialized(item.Graph, initOps):
		logger.Debug("Every resource populated by the init ops is initialized, skipping.", "init_ops", initOps)
	default:
		logger.Info("Running init ops", "init_ops", initOps)
		step := &executor.Step{ID: uuid.NewString(), Graph: item.Graph, Feeds: item.Feeds, Targets: initOps}
		res, orphan, err := watchdog.Run(ctx, c.deadline, "initialize", func() (*executor.Result, error) {
			return c.exec.Execute(ctx, step)
		})
		c.adopt(ctx, orphan)
		if err != nil {
			return err
		}
		c.initCosts = costmodel.Build(res.Stats, c.kernels)
	}

	if len(item.QueueRunners) > 0 {
		runners := newQueueRunners(c.exec, c.sess.Abort, c.kernels, item.Graph, item.QueueRunners)
		orphans, err := runners.Prime(ctx, c.deadline)
		for _, o := range orphans {
			c.adopt(ctx, o)
		}
		if err != nil {
			return err
		}
		runners.Start(ctx)
		c.runners = runners
	}

	return c.transition(Initialized)
}

// bind makes g the bound graph. Binding a graph that differs from the bound
// one stops its queue runners and releases every resource. The caller holds
// c.mu.
func (c *Cluster) bind(ctx context.Context, g *graphspec.GraphSpec) error {
	fingerprint := g.Fingerprint()
	if c.bound != nil && fingerprint != c.boundFingerprint {
		ctxlog.FromContext(ctx).Info("Binding a different graph, releasing resources",
			"component", "cluster", "resources", c.sess.Resources().Len())
		if c.runners != nil {
			c.runners.Stop(ctx, c.shutdownGrace)
			c.runners = nil
		}
		if err := c.sess.Resources().ReleaseAll(ctx); err != nil {
			return status.Wrap(status.Internal, err, "failed to release resources")
		}
		c.initCosts = nil
	}
	c.bound = g
	c.boundFingerprint = fingerprint
	return nil
}

// initOps is the explicit init ops followed by every auto-detected
// initializer, without duplicates.
func (c *Cluster) initOps(item *graphspec.RunRequest) []string {
	seen := make(map[string]bool)
	var ops []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			ops = append(ops, name)
		}
	}
	for _, name := range item.InitOps {
		if ref, err := nodeid.Parse(name); err == nil {
			add(ref.Node)
		}
	}
	for _, op := range item.Graph.Ops() {
		if c.kernels.IsInitializer(op) {
			add(op.Name)
		}
	}
	return ops
}

// alreadyInitialized reports whether every init op populates at least one
// known resource and all of those are marked initialized.
func (c *Cluster) alreadyInitialized(g *graphspec.GraphSpec, initOps []string) bool {
	res := c.sess.Resources()
	for _, name := range initOps {
		op, ok := g.Lookup(name)
		if !ok {
			return false
		}
		populated := c.populatedResources(g, op)
		if len(populated) == 0 {
			return false
		}
		for _, r := range populated {
			if !res.Initialized(r) {
				return false
			}
		}
	}
	return true
}

// populatedResources names every resource created upstream of op, through
// data and control inputs alike, so a NoOp grouping several initializers
// covers the resources of each of them.
func (c *Cluster) populatedResources(g *graphspec.GraphSpec, op *graphspec.Operation) []string {
	var names []string
	visited := map[string]bool{op.Name: true}
	stack := []*graphspec.Operation{op}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur != op && c.kernels.IsResourceCreator(cur.Kind) {
			names = append(names, kernels.ResourceName(cur))
			continue
		}
		refs, err := cur.Refs()
		if err != nil {
			return nil
		}
		for _, ref := range refs {
			if visited[ref.Node] {
				continue
			}
			visited[ref.Node] = true
			if producer, ok := g.Lookup(ref.Node); ok {
				stack = append(stack, producer)
			}
		}
	}
	return names
}

// checkDevices rejects placements on devices the cluster does not have.
func (c *Cluster) checkDevices(g *graphspec.GraphSpec) error {
	topo := c.pool.Topology()
	for _, op := range g.Ops() {
		if _, err := topo.Resolve(op.Device); err != nil {
			return status.Wrap(status.InvalidArgument, err, "operation %q", op.Name)
		}
	}
	return nil
}
