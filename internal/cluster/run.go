package cluster

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/vk/burstcluster/internal/trace"
	"github.com/vk/burstcluster/internal/tracestream"
	"github.com/vk/burstcluster/internal/watchdog"
)

// RunMetadata is filled by a successful Run.
type RunMetadata struct {
	RunID     string
	CostGraph *costmodel.CostGraph
	StepStats *trace.StepStats
	Outputs   map[string]tensor.Tensor
	WallClock time.Duration
}

// Run executes g once with feeds and returns the requested fetches. A nil g
// runs the bound graph. A graph different from the bound one is bound
// implicitly, as by Initialize but without running any init ops.
//
// The step is abandoned once the deadline passes: Run returns
// DeadlineExceeded while the step keeps running in the background until it
// observes an abort. md may be nil.
func (c *Cluster) Run(ctx context.Context, g *graphspec.GraphSpec, feeds map[string]tensor.Tensor, fetches []string, md *RunMetadata) (map[string]tensor.Tensor, error) {
	logger := ctxlog.FromContext(ctx).With("component", "cluster")
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireState("run", Provisioned, Initialized); err != nil {
		return nil, err
	}
	if g == nil {
		if c.bound == nil {
			return nil, status.Errorf(status.InvalidArgument, "no graph given and none is bound")
		}
		g = c.bound
	}

	req := &graphspec.RunRequest{Graph: g, Feeds: feeds, Fetches: fetches}
	if err := req.Validate(c.kernels); err != nil {
		return nil, err
	}
	if err := c.checkDevices(g); err != nil {
		return nil, err
	}
	if g != c.bound {
		if err := c.bind(ctx, g); err != nil {
			return nil, err
		}
	}

	if err := c.transition(Running); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger = logger.With("run", runID)
	start := time.Now()

	outputs, res, err := c.execute(ctx, runID, g, feeds, fetches)
	wall := time.Since(start)

	if terr := c.transition(Initialized); terr != nil {
		err = errors.Join(err, terr)
	}
	if err != nil {
		logger.Warn("Run failed", "error", err, "wall_clock", wall)
		c.publish(ctx, runID, fetches, wall, nil, err)
		return nil, err
	}

	cg := costmodel.Build(res.Stats, c.kernels)
	costmodel.Merge(cg, c.initCosts)
	if c.runners != nil {
		costmodel.Merge(cg, c.runners.Costs())
	}
	cg.ClampCompute(wall)

	if md != nil {
		*md = RunMetadata{RunID: runID, CostGraph: cg, StepStats: res.Stats, Outputs: outputs, WallClock: wall}
	}
	if c.recorder != nil {
		if rerr := c.recorder.SaveRun(ctx, c.recorderLabel, runID, cg); rerr != nil {
			logger.Warn("Failed to record cost graph", "error", rerr)
		}
	}
	c.publish(ctx, runID, fetches, wall, cg, nil)
	logger.Info("Run finished", "wall_clock", wall, "nodes", len(cg.Nodes))
	return outputs, nil
}

// execute optimizes g for the fetches and runs it under the deadline. The
// caller holds c.mu.
func (c *Cluster) execute(ctx context.Context, runID string, g *graphspec.GraphSpec, feeds map[string]tensor.Tensor, fetches []string) (map[string]tensor.Tensor, *executor.Result, error) {
	keep := make([]string, 0, len(fetches))
	for _, f := range fetches {
		ref, err := nodeid.Parse(f)
		if err != nil {
			return nil, nil, status.Wrap(status.InvalidArgument, err, "bad fetch")
		}
		keep = append(keep, ref.Node)
	}
	fed := make([]string, 0, len(feeds))
	for name := range feeds {
		if ref, err := nodeid.Parse(name); err == nil {
			fed = append(fed, ref.Node)
		}
	}

	optimized, err := c.optimizer.Optimize(ctx, g, keep, fed)
	if err != nil {
		return nil, nil, err
	}

	step := &executor.Step{ID: runID, Graph: optimized, Feeds: feeds, Fetches: fetches}
	res, orphan, err := watchdog.Run(ctx, c.deadline, "run "+runID, func() (*executor.Result, error) {
		return c.exec.Execute(ctx, step)
	})
	c.adopt(ctx, orphan)
	if err != nil {
		return nil, nil, err
	}
	return res.Outputs, res, nil
}

func (c *Cluster) publish(ctx context.Context, runID string, fetches []string, wall time.Duration, cg *costmodel.CostGraph, runErr error) {
	summary := tracestream.RunSummary{
		RunID:     runID,
		Status:    status.CodeOf(runErr).String(),
		WallClock: wall.Microseconds(),
		Fetches:   fetches,
		Finished:  time.Now(),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	if cg != nil {
		external := cg.External()
		summary.Nodes = len(external)
		for _, n := range external {
			summary.ComputeCost += n.ComputeCost
		}
	}
	c.publisher.Publish(ctx, tracestream.EventRunCompleted, summary)
}
