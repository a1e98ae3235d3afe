package kernels

import (
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerControlKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindEnter, Flags: LoopControl, Compute: forward})
	r.Register(&Kernel{Kind: KindExit, Flags: LoopControl, Compute: forward})
	r.Register(&Kernel{Kind: KindNextIteration, Flags: LoopControl, Compute: forward})
	r.Register(&Kernel{Kind: KindLoopCond, Flags: LoopControl, Compute: forward})
	r.Register(&Kernel{Kind: KindSwitch, Flags: LoopControl, Compute: computeSwitch})
	r.Register(&Kernel{Kind: KindMerge, Flags: LoopControl, Compute: computeMerge})
}

func forward(kc *Context) error {
	if err := kc.requireInputs(1); err != nil {
		return err
	}
	kc.SetOutput(0, kc.Inputs[0])
	return nil
}

// computeSwitch routes data to output 1 when pred is true and to output 0
// otherwise; the other output is dead.
func computeSwitch(kc *Context) error {
	if err := kc.requireInputs(2); err != nil {
		return err
	}
	pred, err := kc.Input(1)
	if err != nil {
		return err
	}
	if pred.NumElements() != 1 {
		return status.Errorf(status.InvalidArgument, "Switch %q predicate must be a scalar, got shape %s", kc.Op.Name, pred.Shape)
	}
	if pred.Truthy() {
		kc.SetDeadOutput(0)
		kc.SetOutput(1, kc.Inputs[0])
	} else {
		kc.SetOutput(0, kc.Inputs[0])
		kc.SetDeadOutput(1)
	}
	return nil
}

// computeMerge forwards the first live input and its index. With no live
// input both outputs are dead.
func computeMerge(kc *Context) error {
	for i, in := range kc.Inputs {
		if i < len(kc.Dead) && kc.Dead[i] {
			continue
		}
		kc.SetOutput(0, in)
		kc.SetOutput(1, tensor.Scalar(tensor.Int32, float64(i)))
		return nil
	}
	kc.SetDeadOutput(0)
	kc.SetDeadOutput(1)
	return nil
}
