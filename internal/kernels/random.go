package kernels

import (
	"math/rand/v2"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerRandomKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindRandomNormal, Flags: Stateful, Compute: randomKernel(func(rng *rand.Rand, a, b float64) float64 {
		return a + b*rng.NormFloat64()
	}, "mean", 0, "stddev", 1)})
	r.Register(&Kernel{Kind: KindRandomUniform, Flags: Stateful, Compute: randomKernel(func(rng *rand.Rand, a, b float64) float64 {
		return a + (b-a)*rng.Float64()
	}, "minval", 0, "maxval", 1)})
}

// randomKernel reads the output shape from the first input if present,
// otherwise from the `shape` attribute. A non-zero `seed` makes the output
// deterministic.
func randomKernel(sample func(rng *rand.Rand, a, b float64) float64, aName string, aDef float64, bName string, bDef float64) ComputeFunc {
	return func(kc *Context) error {
		shape, err := randomShape(kc)
		if err != nil {
			return err
		}
		dtype, err := kc.Op.AttrDType("dtype", tensor.Float32)
		if err != nil {
			return err
		}
		a, err := kc.Op.AttrFloat(aName, aDef)
		if err != nil {
			return err
		}
		b, err := kc.Op.AttrFloat(bName, bDef)
		if err != nil {
			return err
		}
		seed, err := kc.Op.AttrInt("seed", 0)
		if err != nil {
			return err
		}

		var rng *rand.Rand
		if seed != 0 {
			rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
		} else {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}

		out := make([]float64, shape.NumElements())
		for i := range out {
			out[i] = sample(rng, a, b)
		}
		kc.SetOutput(0, tensor.Tensor{DType: dtype, Shape: shape}.WithValues(out))
		return nil
	}
}

func randomShape(kc *Context) (tensor.Shape, error) {
	if kc.NumInputs() > 0 {
		s, err := kc.Input(0)
		if err != nil {
			return nil, err
		}
		shape := make(tensor.Shape, len(s.Values))
		for i, v := range s.Values {
			shape[i] = int(v)
		}
		return shape, nil
	}
	shape, ok, err := kc.Op.AttrShape("shape")
	if err != nil {
		return nil, err
	}
	if !ok || shape.NumElements() < 0 {
		return nil, status.Errorf(status.InvalidArgument, "%s %q needs a fully defined shape", kc.Op.Kind, kc.Op.Name)
	}
	return shape, nil
}
