// Package localexecutor provides a concrete, in-process implementation of the
// executor.Executor interface.
package localexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/scheduler"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/vk/burstcluster/internal/trace"
	"github.com/vk/burstcluster/internal/workerpool"
)

// Names of the synthetic records framing every step trace.
const (
	SourceNode = "_SOURCE"
	SinkNode   = "_SINK"
)

// ArgNodeName is the trace name of a fed output.
func ArgNodeName(node string, slot int) string {
	return fmt.Sprintf("_arg_%s_%d_0", node, slot)
}

// Executor implements the executor.Executor interface for local execution.
type Executor struct {
	pool      *workerpool.Pool
	kernels   *kernels.Registry
	resources *resources.Registry
	maxTrace  int

	mu     sync.Mutex
	nextID uint64
	active map[uint64]context.CancelFunc
}

var _ executor.Executor = (*Executor)(nil)

// New creates a local executor that runs kernels on pool against the given
// resource registry. maxTrace bounds the trace records kept per step.
func New(pool *workerpool.Pool, reg *kernels.Registry, res *resources.Registry, maxTrace int) *Executor {
	return &Executor{
		pool:      pool,
		kernels:   reg,
		resources: res,
		maxTrace:  maxTrace,
		active:    make(map[uint64]context.CancelFunc),
	}
}

type completion struct {
	act     scheduler.Activation
	outputs []scheduler.Output
	err     error
}

// Execute runs one step to quiescence. The caller's ctx supplies values such
// as the logger; it is not consulted for cancellation while the step runs.
// Use Abort to tear a step down.
func (e *Executor) Execute(ctx context.Context, step *executor.Step) (*executor.Result, error) {
	logger := ctxlog.FromContext(ctx).With("step", step.ID)
	logger.Debug("Compiling step.", "fetches", step.Fetches, "targets", step.Targets, "feeds", len(step.Feeds))

	plan, err := scheduler.Compile(scheduler.Request{
		Graph:   step.Graph,
		Feeds:   step.Feeds,
		Fetches: step.Fetches,
		Targets: step.Targets,
	}, e.kernels, e.pool.Topology())
	if err != nil {
		return nil, err
	}

	abortCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer e.unregister(e.register(cancel))

	rec := trace.NewRecorder(step.ID, e.maxTrace)
	rec.Record(&trace.NodeExecStats{NodeName: SourceNode, Kind: SourceNode, Device: e.pool.Topology().Devices()[0].Name(), Start: time.Now(), OnHost: true})

	st := scheduler.NewState(plan)
	done := make(chan completion)
	running := 0
	noOutputs := make(map[string]bool)
	var firstErr error

	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	ready := st.Start()
	for {
		for len(ready) > 0 && firstErr == nil && abortCtx.Err() == nil {
			act := ready[0]
			ready = ready[1:]
			if act.Node.IsFed() {
				outputs := e.feed(act.Node, rec)
				next, err := st.Complete(act.Node, outputs)
				if err != nil {
					fail(err)
					break
				}
				ready = append(ready, next...)
				continue
			}
			running++
			go e.run(abortCtx, act, rec, done)
		}
		ready = nil

		if running == 0 {
			break
		}
		c := <-done
		running--
		if c.err != nil {
			st.Fail(c.act.Node)
			logger.Debug("Operation failed.", "node", c.act.Node.Name, "error", c.err)
			fail(c.err)
			continue
		}
		noOutputs[c.act.Node.Name] = len(c.outputs) == 0
		next, err := st.Complete(c.act.Node, c.outputs)
		if err != nil {
			fail(err)
			continue
		}
		if firstErr == nil {
			ready = next
		}
	}

	rec.Record(&trace.NodeExecStats{NodeName: SinkNode, Kind: SinkNode, Device: e.pool.Topology().Devices()[0].Name(), Start: time.Now(), OnHost: true})
	stats := rec.Finish()

	if firstErr != nil {
		logger.Debug("Step failed.", "error", firstErr)
		return &executor.Result{Stats: stats}, firstErr
	}
	if abortCtx.Err() != nil {
		return &executor.Result{Stats: stats}, status.Errorf(status.Cancelled, "step %s was aborted", step.ID)
	}

	result := &executor.Result{Outputs: make(map[string]tensor.Tensor, len(step.Fetches)), Stats: stats}
	for i, f := range step.Fetches {
		addr := plan.Fetches[i]
		if v, ok := st.Fetch(addr); ok {
			result.Outputs[f] = v
			continue
		}
		if addr.Output == 0 && st.Executed(addr.Node) && noOutputs[addr.Node] {
			result.Outputs[f] = tensor.Tensor{}
			continue
		}
		return result, status.Errorf(status.Internal, "fetch %q was not computed", f)
	}
	logger.Debug("Step finished.", "records", len(stats.Nodes))
	return result, nil
}

// feed completes a fed node inline from its supplied values.
func (e *Executor) feed(n *scheduler.Node, rec *trace.Recorder) []scheduler.Output {
	var outputs []scheduler.Output
	for slot, v := range n.Fed {
		for len(outputs) <= slot {
			outputs = append(outputs, scheduler.Output{})
		}
		outputs[slot] = scheduler.Output{Value: v, Produced: true}
		rec.Record(&trace.NodeExecStats{
			NodeName: ArgNodeName(n.Name, slot),
			Kind:     n.Op.Kind,
			Device:   n.Device.Name(),
			Start:    time.Now(),
			OnHost:   n.Device.IsHost(),
			Outputs:  []trace.Output{describe(0, v)},
		})
	}
	return outputs
}

func (e *Executor) run(ctx context.Context, act scheduler.Activation, rec *trace.Recorder, done chan<- completion) {
	c := completion{act: act}
	defer func() { done <- c }()

	n := act.Node
	release, err := e.pool.Acquire(ctx, n.Device)
	if err != nil {
		c.err = err
		return
	}
	defer release()

	kc := &kernels.Context{
		Ctx:       ctx,
		Op:        n.Op,
		Device:    n.Device,
		Inputs:    act.Inputs,
		Dead:      act.Dead,
		Resources: e.resources,
		Abort:     ctx.Done(),
	}
	start := time.Now()
	err = compute(n.Kernel, kc)
	elapsed := time.Since(start)
	if err != nil {
		c.err = err
		return
	}

	stats := &trace.NodeExecStats{
		NodeName: n.Name,
		Kind:     n.Op.Kind,
		Device:   n.Device.Name(),
		Start:    start,
		Elapsed:  elapsed,
		OnHost:   n.Device.IsHost(),
		Writes:   kc.Writes(),
	}
	c.outputs = make([]scheduler.Output, kc.NumOutputs())
	for i := range c.outputs {
		v, live := kc.Output(i)
		c.outputs[i] = scheduler.Output{Value: v, Produced: kc.Produced(i), Dead: kc.IsDeadOutput(i)}
		if live {
			stats.Outputs = append(stats.Outputs, describe(i, v))
		}
	}
	rec.Record(stats)
}

func compute(k *kernels.Kernel, kc *kernels.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(status.Internal, "%s %q panicked: %v", kc.Op.Kind, kc.Op.Name, r)
		}
	}()
	return k.Compute(kc)
}

func describe(slot int, v tensor.Tensor) trace.Output {
	return trace.Output{
		Slot:  slot,
		DType: v.DType.String(),
		Shape: []int(v.Shape.Clone()),
		Bytes: v.ByteSize(),
	}
}

// Abort cancels every step currently executing.
func (e *Executor) Abort(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) > 0 {
		ctxlog.FromContext(ctx).Debug("Aborting active steps.", "count", len(e.active))
	}
	for _, cancel := range e.active {
		cancel()
	}
}

// Active reports the number of steps currently executing.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Executor) register(cancel context.CancelFunc) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.active[e.nextID] = cancel
	return e.nextID
}

func (e *Executor) unregister(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}
