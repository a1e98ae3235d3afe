// Package optimizer rewrites a graph before it runs: it drops operations the
// requested outputs do not depend on and folds pure operations over
// constants into constants.
package optimizer

import (
	"context"

	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/zclconf/go-cty/cty"
)

// Optimizer rewrites graphs. keep names the tensors or operations that must
// survive; fed names the feeds of the run, whose operations are never
// folded or traversed.
type Optimizer interface {
	Optimize(ctx context.Context, g *graphspec.GraphSpec, keep, fed []string) (*graphspec.GraphSpec, error)
	Enabled() bool
}

// Default prunes and folds constants using the kernel registry.
type Default struct {
	kernels *kernels.Registry
	enabled bool
}

var _ Optimizer = (*Default)(nil)

// New returns an optimizer. A disabled optimizer returns graphs unchanged.
func New(reg *kernels.Registry, enabled bool) *Default {
	return &Default{kernels: reg, enabled: enabled}
}

// Enabled reports whether Optimize rewrites anything.
func (o *Default) Enabled() bool { return o.enabled }

// Optimize returns the rewritten graph. The input graph is not modified.
func (o *Default) Optimize(ctx context.Context, g *graphspec.GraphSpec, keep, fed []string) (*graphspec.GraphSpec, error) {
	if !o.enabled {
		return g, nil
	}
	logger := ctxlog.FromContext(ctx)

	fedOps := make(map[string]bool, len(fed))
	for _, f := range fed {
		addr, err := nodeid.Parse(f)
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "invalid feed %q", f)
		}
		fedOps[addr.Node] = true
	}
	roots := make([]string, 0, len(keep))
	for _, k := range keep {
		addr, err := nodeid.Parse(k)
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "invalid keep %q", k)
		}
		roots = append(roots, addr.Node)
	}

	out, err := prune(g, roots, fedOps)
	if err != nil {
		return nil, err
	}
	for {
		folded, n := o.fold(ctx, out, fedOps)
		if n == 0 {
			break
		}
		logger.Debug("Folded constant operations.", "count", n)
		if out, err = prune(folded, roots, fedOps); err != nil {
			return nil, err
		}
	}
	logger.Debug("Graph optimized.", "before", g.Len(), "after", out.Len())
	return out, nil
}

// prune keeps the operations roots depend on, through data and control
// inputs, in their original order.
func prune(g *graphspec.GraphSpec, roots []string, fed map[string]bool) (*graphspec.GraphSpec, error) {
	needed := make(map[string]bool)
	stack := append([]string{}, roots...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[name] {
			continue
		}
		op, ok := g.Lookup(name)
		if !ok {
			return nil, status.Errorf(status.InvalidArgument, "operation %q is not in the graph", name)
		}
		needed[name] = true
		if fed[name] {
			continue
		}
		refs, err := op.Refs()
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			stack = append(stack, ref.Node)
		}
	}

	var ops []*graphspec.Operation
	for _, op := range g.Ops() {
		if needed[op.Name] {
			ops = append(ops, op.Clone())
		}
	}
	return graphspec.New(ops...), nil
}

// fold replaces every foldable operation whose inputs are all unfed
// constants with a constant of the same name and placement.
func (o *Default) fold(ctx context.Context, g *graphspec.GraphSpec, fed map[string]bool) (*graphspec.GraphSpec, int) {
	logger := ctxlog.FromContext(ctx)
	folded := 0
	ops := make([]*graphspec.Operation, 0, g.Len())
	for _, op := range g.Ops() {
		value, ok := o.tryFold(ctx, g, op, fed)
		if !ok {
			ops = append(ops, op)
			continue
		}
		logger.Debug("Folding operation into a constant.", "node", op.Name, "kind", op.Kind)
		c := graphspec.Op(op.Name, kernels.KindConst).
			OnDevice(op.Device).
			WithAttr("value", value.ToCty()).
			WithAttr("dtype", cty.StringVal(value.DType.String())).
			WithAttr("shape", graphspec.Shape(value.Shape...))
		ops = append(ops, c)
		folded++
	}
	return graphspec.New(ops...), folded
}

func (o *Default) tryFold(ctx context.Context, g *graphspec.GraphSpec, op *graphspec.Operation, fed map[string]bool) (tensor.Tensor, bool) {
	if fed[op.Name] || len(op.Inputs) == 0 {
		return tensor.Tensor{}, false
	}
	k, ok := o.kernels.Lookup(op.Kind)
	if !ok || !k.Foldable() {
		return tensor.Tensor{}, false
	}
	refs, err := op.Refs()
	if err != nil {
		return tensor.Tensor{}, false
	}

	constKernel, ok := o.kernels.Lookup(kernels.KindConst)
	if !ok {
		return tensor.Tensor{}, false
	}
	inputs := make([]tensor.Tensor, 0, len(refs))
	for _, ref := range refs {
		producer, ok := g.Lookup(ref.Node)
		if !ok || ref.Control || ref.Output != 0 || fed[ref.Node] || producer.Kind != kernels.KindConst {
			return tensor.Tensor{}, false
		}
		vals, err := kernels.Evaluate(ctx, constKernel, producer, nil)
		if err != nil || len(vals) != 1 {
			return tensor.Tensor{}, false
		}
		inputs = append(inputs, vals[0])
	}

	out, err := kernels.Evaluate(ctx, k, op, inputs)
	if err != nil || len(out) != 1 {
		ctxlog.FromContext(ctx).Debug("Operation not folded.", "node", op.Name, "error", err)
		return tensor.Tensor{}, false
	}
	return out[0], true
}
