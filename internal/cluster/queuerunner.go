package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/watchdog"
)

// queueRunners keeps the queues of one bound graph fed from background
// goroutines and remembers the cost of the latest pass of each runner.
type queueRunners struct {
	exec    executor.Executor
	abort   func(context.Context)
	kinds   costmodel.KindInfo
	graph   *graphspec.GraphSpec
	runners []graphspec.QueueRunner

	stopped atomic.Bool
	wg      sync.WaitGroup

	mu    sync.Mutex
	costs map[string]*costmodel.CostGraph
}

func newQueueRunners(exec executor.Executor, abort func(context.Context), kinds costmodel.KindInfo, g *graphspec.GraphSpec, runners []graphspec.QueueRunner) *queueRunners {
	return &queueRunners{
		exec:    exec,
		abort:   abort,
		kinds:   kinds,
		graph:   g,
		runners: runners,
		costs:   make(map[string]*costmodel.CostGraph),
	}
}

func (q *queueRunners) pass(ctx context.Context, qr graphspec.QueueRunner) error {
	res, err := q.exec.Execute(ctx, &executor.Step{ID: uuid.NewString(), Graph: q.graph, Targets: qr.EnqueueOps})
	if err != nil {
		return err
	}
	cg := costmodel.Build(res.Stats, q.kinds)
	q.mu.Lock()
	q.costs[qr.Queue] = cg
	q.mu.Unlock()
	return nil
}

// Prime runs one pass of every runner synchronously, each under deadline.
func (q *queueRunners) Prime(ctx context.Context, deadline time.Duration) ([]*watchdog.Orphan, error) {
	var orphans []*watchdog.Orphan
	for _, qr := range q.runners {
		_, orphan, err := watchdog.Run(ctx, deadline, "queue runner "+qr.Queue, func() (struct{}, error) {
			return struct{}{}, q.pass(ctx, qr)
		})
		if orphan != nil {
			orphans = append(orphans, orphan)
		}
		if err != nil {
			return orphans, err
		}
	}
	return orphans, nil
}

// Start launches one background loop per runner. Loops run until Stop or
// until a pass fails, which is how a closed queue ends them.
func (q *queueRunners) Start(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	for _, qr := range q.runners {
		q.wg.Add(1)
		go q.loop(bg, qr)
	}
}

func (q *queueRunners) loop(ctx context.Context, qr graphspec.QueueRunner) {
	defer q.wg.Done()
	logger := ctxlog.FromContext(ctx).With("queue", qr.Queue)
	logger.Debug("Queue runner started.")
	passes := 0
	for !q.stopped.Load() {
		if err := q.pass(ctx, qr); err != nil {
			logger.Debug("Queue runner finished.", "passes", passes, "reason", err)
			return
		}
		passes++
	}
	logger.Debug("Queue runner stopped.", "passes", passes)
}

// Stop ends every loop: it runs the cancel ops, waits up to grace, then
// aborts in-flight steps and waits up to grace again.
func (q *queueRunners) Stop(ctx context.Context, grace time.Duration) {
	logger := ctxlog.FromContext(ctx)
	if q.stopped.Swap(true) {
		return
	}

	var cancelOps []string
	for _, qr := range q.runners {
		if qr.CancelOp != "" {
			cancelOps = append(cancelOps, qr.CancelOp)
		}
	}
	if len(cancelOps) > 0 {
		_, _, err := watchdog.Run(ctx, grace, "queue cancel", func() (*executor.Result, error) {
			return q.exec.Execute(ctx, &executor.Step{ID: uuid.NewString(), Graph: q.graph, Targets: cancelOps})
		})
		if err != nil {
			logger.Warn("Queue cancel ops failed", "error", err)
		}
	}

	if q.wait(grace) {
		return
	}
	logger.Warn("Queue runners did not stop within the grace period, aborting", "grace", grace)
	q.abort(ctx)
	if !q.wait(grace) {
		logger.Warn("Queue runners still running after abort")
	}
}

func (q *queueRunners) wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Costs merges the latest pass of every runner.
func (q *queueRunners) Costs() *costmodel.CostGraph {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := &costmodel.CostGraph{}
	for _, qr := range q.runners {
		costmodel.Merge(out, q.costs[qr.Queue])
	}
	return out
}
