package kernels

import (
	"math"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerMathKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindAdd, Compute: binary(func(a, b float64) float64 { return a + b }, false)})
	r.Register(&Kernel{Kind: KindSub, Compute: binary(func(a, b float64) float64 { return a - b }, false)})
	r.Register(&Kernel{Kind: KindMul, Compute: binary(func(a, b float64) float64 { return a * b }, false)})
	r.Register(&Kernel{Kind: KindEqual, Compute: binary(func(a, b float64) float64 { return boolf(a == b) }, true)})
	r.Register(&Kernel{Kind: KindLess, Compute: binary(func(a, b float64) float64 { return boolf(a < b) }, true)})
	r.Register(&Kernel{Kind: KindGreater, Compute: binary(func(a, b float64) float64 { return boolf(a > b) }, true)})
	r.Register(&Kernel{Kind: KindAddN, Compute: computeAddN})
	r.Register(&Kernel{Kind: KindSquare, Compute: unary(func(x float64) float64 { return x * x })})
	r.Register(&Kernel{Kind: KindNeg, Compute: unary(func(x float64) float64 { return -x })})
	r.Register(&Kernel{Kind: KindSign, Compute: unary(sign)})
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	case math.IsNaN(x):
		return x
	}
	return 0
}

func unary(f func(float64) float64) ComputeFunc {
	return func(kc *Context) error {
		x, err := kc.Input(0)
		if err != nil {
			return err
		}
		out := make([]float64, len(x.Values))
		for i, v := range x.Values {
			out[i] = f(v)
		}
		kc.SetOutput(0, tensor.Tensor{DType: x.DType, Shape: x.Shape.Clone()}.WithValues(out))
		return nil
	}
}

// binary applies f elementwise. Shapes must match unless one side holds a
// single element, which is broadcast.
func binary(f func(a, b float64) float64, predicate bool) ComputeFunc {
	return func(kc *Context) error {
		a, err := kc.Input(0)
		if err != nil {
			return err
		}
		b, err := kc.Input(1)
		if err != nil {
			return err
		}

		shape := a.Shape
		switch {
		case a.Shape.Equal(b.Shape):
		case b.NumElements() == 1:
		case a.NumElements() == 1:
			shape = b.Shape
		default:
			return status.Errorf(status.InvalidArgument, "%s %q: incompatible shapes %s and %s",
				kc.Op.Kind, kc.Op.Name, a.Shape, b.Shape)
		}

		n := shape.NumElements()
		out := make([]float64, n)
		for i := range out {
			out[i] = f(at(a, i), at(b, i))
		}
		dtype := a.DType
		if predicate {
			dtype = tensor.Bool
		}
		kc.SetOutput(0, tensor.Tensor{DType: dtype, Shape: shape.Clone()}.WithValues(out))
		return nil
	}
}

func at(t tensor.Tensor, i int) float64 {
	if len(t.Values) == 1 {
		return t.Values[0]
	}
	return t.Values[i]
}

func computeAddN(kc *Context) error {
	first, err := kc.Input(0)
	if err != nil {
		return err
	}
	out := append([]float64{}, first.Values...)
	for i := 1; i < kc.NumInputs(); i++ {
		x, err := kc.Input(i)
		if err != nil {
			return err
		}
		if !x.Shape.Equal(first.Shape) {
			return status.Errorf(status.InvalidArgument, "AddN %q: input %d has shape %s, want %s",
				kc.Op.Name, i, x.Shape, first.Shape)
		}
		for j, v := range x.Values {
			out[j] += v
		}
	}
	kc.SetOutput(0, tensor.Tensor{DType: first.DType, Shape: first.Shape.Clone()}.WithValues(out))
	return nil
}
