package graphhcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/tensor"
)

// isExprDefined checks if an HCL expression was actually present in the
// source. The decoder fills omitted optional fields with zero-width
// expressions, so a nil check is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// translateNode turns a node block into an operation.
func translateNode(ctx context.Context, b *nodeBlock) (*graphspec.Operation, error) {
	op := graphspec.Op(b.Name, b.Op, b.Inputs...).OnDevice(b.Device)
	if !isExprDefined(b.Attrs) {
		return op, nil
	}

	val, diags := b.Attrs.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("node %q attrs: %w", b.Name, diags)
	}
	if val.IsNull() {
		return op, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("node %q attrs must be an object, got %s", b.Name, ty.FriendlyName())
	}
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		op.WithAttr(k.AsString(), v)
	}
	ctxlog.FromContext(ctx).Debug("Translated node.", "node", b.Name, "op", b.Op, "attrs", len(op.Attrs))
	return op, nil
}

// translateFeed evaluates a feed block into a tensor.
func translateFeed(b *feedBlock) (tensor.Tensor, error) {
	val, diags := b.Value.Value(nil)
	if diags.HasErrors() {
		return tensor.Tensor{}, fmt.Errorf("feed %q value: %w", b.Name, diags)
	}
	dtype := tensor.Invalid
	if b.DType != "" {
		d, err := tensor.ParseDType(b.DType)
		if err != nil {
			return tensor.Tensor{}, fmt.Errorf("feed %q: %w", b.Name, err)
		}
		dtype = d
	}
	t, err := tensor.FromCty(val, dtype)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("feed %q: %w", b.Name, err)
	}
	return t, nil
}

func translateQueueRunner(b *queueRunnerBlock) graphspec.QueueRunner {
	return graphspec.QueueRunner{
		Queue:      b.Queue,
		EnqueueOps: append([]string(nil), b.EnqueueOps...),
		CancelOp:   b.CancelOp,
	}
}
