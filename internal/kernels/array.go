package kernels

import (
	"fmt"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerArrayKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindConst, Flags: Source, Compute: computeConst})
	r.Register(&Kernel{Kind: KindPlaceholder, Flags: Source, Compute: computePlaceholder})
	r.Register(&Kernel{Kind: KindIdentity, Compute: computeIdentity})
	r.Register(&Kernel{Kind: KindNoOp, Flags: Stateful, Compute: func(*Context) error { return nil }})
	r.Register(&Kernel{Kind: KindReshape, Compute: computeReshape})
	r.Register(&Kernel{Kind: KindShape, Compute: computeShape})
	r.Register(&Kernel{Kind: KindAll, Compute: computeAll})
	r.Register(&Kernel{Kind: KindAssert, Flags: Stateful, Compute: computeAssert})
}

// computeConst materializes the `value` attribute, optionally broadcast to
// `shape` when the value is a scalar.
func computeConst(kc *Context) error {
	raw, ok := kc.Op.Attr("value")
	if !ok {
		return status.Errorf(status.InvalidArgument, "Const %q has no value attribute", kc.Op.Name)
	}
	dtype, err := kc.Op.AttrDType("dtype", tensor.Invalid)
	if err != nil {
		return err
	}
	t, err := tensor.FromCty(raw, dtype)
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, "Const %q", kc.Op.Name)
	}

	shape, hasShape, err := kc.Op.AttrShape("shape")
	if err != nil {
		return err
	}
	if hasShape && !shape.Equal(t.Shape) {
		switch {
		case t.NumElements() == 1:
			t = tensor.Fill(t.DType, shape, t.Values[0])
		case t.NumElements() == shape.NumElements():
			t = tensor.Tensor{DType: t.DType, Shape: shape}.WithValues(t.Values)
		default:
			return status.Errorf(status.InvalidArgument, "Const %q value of shape %s does not fit shape %s", kc.Op.Name, t.Shape, shape)
		}
	}
	kc.SetOutput(0, t)
	return nil
}

func computePlaceholder(kc *Context) error {
	return status.Errorf(status.InvalidArgument, "you must feed a value for placeholder %q", kc.Op.Name)
}

func computeIdentity(kc *Context) error {
	if err := kc.requireInputs(1); err != nil {
		return err
	}
	kc.SetOutput(0, kc.Inputs[0])
	return nil
}

func computeReshape(kc *Context) error {
	x, err := kc.Input(0)
	if err != nil {
		return err
	}
	var dims []int
	if kc.NumInputs() > 1 {
		s, err := kc.Input(1)
		if err != nil {
			return err
		}
		for _, v := range s.Values {
			dims = append(dims, int(v))
		}
	} else {
		shape, ok, err := kc.Op.AttrShape("shape")
		if err != nil {
			return err
		}
		if !ok {
			return status.Errorf(status.InvalidArgument, "Reshape %q needs a shape input or attribute", kc.Op.Name)
		}
		dims = shape
	}

	target, err := resolveShape(dims, x.NumElements())
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, "Reshape %q", kc.Op.Name)
	}
	kc.SetOutput(0, tensor.Tensor{DType: x.DType, Shape: target}.WithValues(append([]float64{}, x.Values...)))
	return nil
}

// resolveShape fills in a single -1 dimension so the shape holds n elements.
func resolveShape(dims []int, n int64) (tensor.Shape, error) {
	out := make(tensor.Shape, len(dims))
	unknown := -1
	known := int64(1)
	for i, d := range dims {
		switch {
		case d == -1 && unknown == -1:
			unknown = i
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d in %v", d, dims)
		default:
			known *= int64(d)
		}
		out[i] = d
	}
	if unknown >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v for %d elements", dims, n)
		}
		out[unknown] = int(n / known)
		known = n
	}
	if known != n {
		return nil, fmt.Errorf("cannot reshape %d elements into %v", n, dims)
	}
	return out, nil
}

func computeShape(kc *Context) error {
	if err := kc.requireInputs(1); err != nil {
		return err
	}
	x := kc.Inputs[0]
	values := make([]float64, len(x.Shape))
	for i, d := range x.Shape {
		values[i] = float64(d)
	}
	kc.SetOutput(0, tensor.Vector(tensor.Int32, values...))
	return nil
}

// computeAll reduces across every dimension. The optional axis input is
// accepted for compatibility and does not narrow the reduction.
func computeAll(kc *Context) error {
	x, err := kc.Input(0)
	if err != nil {
		return err
	}
	result := 1.0
	for _, v := range x.Values {
		if v == 0 {
			result = 0
			break
		}
	}
	kc.SetOutput(0, tensor.Scalar(tensor.Bool, result))
	return nil
}

func computeAssert(kc *Context) error {
	cond, err := kc.Input(0)
	if err != nil {
		return err
	}
	if cond.Truthy() {
		return nil
	}
	summary := ""
	for i := 1; i < kc.NumInputs(); i++ {
		summary += " " + kc.Inputs[i].String()
	}
	return status.Errorf(status.InvalidArgument, "assertion %q failed:%s", kc.Op.Name, summary)
}
