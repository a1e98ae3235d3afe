package kernels

import (
	"context"

	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/vk/burstcluster/internal/trace"
)

// Context is everything a kernel sees during one execution.
type Context struct {
	Ctx       context.Context
	Op        *graphspec.Operation
	Device    devices.Device
	Inputs    []tensor.Tensor
	Dead      []bool
	Resources *resources.Registry
	// Abort is closed when the step is being torn down. Blocking kernels
	// must select on it.
	Abort <-chan struct{}

	outputs  []tensor.Tensor
	produced []bool
	dead     []bool
	writes   []trace.ResourceWrite
}

func (kc *Context) grow(i int) {
	for len(kc.outputs) <= i {
		kc.outputs = append(kc.outputs, tensor.Tensor{})
		kc.produced = append(kc.produced, false)
		kc.dead = append(kc.dead, false)
	}
}

// SetOutput publishes output slot i.
func (kc *Context) SetOutput(i int, t tensor.Tensor) {
	kc.grow(i)
	kc.outputs[i] = t
	kc.produced[i] = true
	kc.dead[i] = false
}

// SetDeadOutput marks output slot i as dead: consumers receive no value.
func (kc *Context) SetDeadOutput(i int) {
	kc.grow(i)
	kc.outputs[i] = tensor.Tensor{}
	kc.produced[i] = true
	kc.dead[i] = true
}

// NumOutputs is one past the highest slot set.
func (kc *Context) NumOutputs() int { return len(kc.outputs) }

// Output returns slot i and whether it was produced live.
func (kc *Context) Output(i int) (tensor.Tensor, bool) {
	if i < 0 || i >= len(kc.outputs) || !kc.produced[i] || kc.dead[i] {
		return tensor.Tensor{}, false
	}
	return kc.outputs[i], true
}

// IsDeadOutput reports whether slot i was explicitly marked dead.
func (kc *Context) IsDeadOutput(i int) bool {
	return i >= 0 && i < len(kc.dead) && kc.dead[i]
}

// Produced reports whether slot i was set at all.
func (kc *Context) Produced(i int) bool {
	return i >= 0 && i < len(kc.produced) && kc.produced[i]
}

// RecordWrite notes bytes stored into a resource.
func (kc *Context) RecordWrite(resource string, bytes int64) {
	kc.writes = append(kc.writes, trace.ResourceWrite{Resource: resource, Bytes: bytes})
}

// Writes returns every recorded resource write.
func (kc *Context) Writes() []trace.ResourceWrite { return kc.writes }

// NumInputs is the number of data inputs.
func (kc *Context) NumInputs() int { return len(kc.Inputs) }

func (kc *Context) requireInputs(n int) error {
	if len(kc.Inputs) < n {
		return status.Errorf(status.InvalidArgument, "%s %q expects at least %d input(s), got %d",
			kc.Op.Kind, kc.Op.Name, n, len(kc.Inputs))
	}
	return nil
}

// Input returns data input i, which must carry readable values.
func (kc *Context) Input(i int) (tensor.Tensor, error) {
	if err := kc.requireInputs(i + 1); err != nil {
		return tensor.Tensor{}, err
	}
	t := kc.Inputs[i]
	if t.DType == tensor.Resource {
		return tensor.Tensor{}, status.Errorf(status.InvalidArgument,
			"%s %q input %d is a resource handle, not a value", kc.Op.Kind, kc.Op.Name, i)
	}
	if !t.HasValues() {
		return tensor.Tensor{}, status.Errorf(status.FailedPrecondition,
			"attempting to use uninitialized value %s", t.Handle)
	}
	return t, nil
}

// Handle returns the resource name carried by input i.
func (kc *Context) Handle(i int) (string, error) {
	if err := kc.requireInputs(i + 1); err != nil {
		return "", err
	}
	if !kc.Inputs[i].IsRef() {
		return "", status.Errorf(status.InvalidArgument,
			"%s %q input %d must be a resource reference", kc.Op.Kind, kc.Op.Name, i)
	}
	return kc.Inputs[i].Handle, nil
}

func (kc *Context) context() context.Context {
	if kc.Ctx == nil {
		return context.Background()
	}
	return kc.Ctx
}

// Evaluate runs a kernel outside of any step, with no resources. It is used
// to fold constant subgraphs.
func Evaluate(ctx context.Context, k *Kernel, op *graphspec.Operation, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	kc := &Context{Ctx: ctx, Op: op, Device: devices.Host, Inputs: inputs, Dead: make([]bool, len(inputs))}
	if err := k.Compute(kc); err != nil {
		return nil, err
	}
	out := make([]tensor.Tensor, kc.NumOutputs())
	for i := range out {
		t, ok := kc.Output(i)
		if !ok {
			return nil, status.Errorf(status.Internal, "%s %q did not produce output %d", op.Kind, op.Name, i)
		}
		out[i] = t
	}
	return out, nil
}
