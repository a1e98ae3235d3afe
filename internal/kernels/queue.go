package kernels

import (
	"github.com/vk/burstcluster/internal/resources"
	"github.com/vk/burstcluster/internal/tensor"
)

func registerQueueKernels(r *Registry) {
	r.Register(&Kernel{Kind: KindFIFOQueue, Flags: ResourceCreator | Stateful, ResourceKind: resources.KindQueue, Compute: computeFIFOQueue})
	r.Register(&Kernel{Kind: KindQueueEnqueue, Flags: Stateful, Compute: computeEnqueue})
	r.Register(&Kernel{Kind: KindQueueDequeue, Flags: Stateful, Compute: computeDequeue})
	r.Register(&Kernel{Kind: KindQueueClose, Flags: Stateful, Compute: computeQueueClose})
	r.Register(&Kernel{Kind: KindQueueSize, Flags: Stateful, Compute: computeQueueSize})
}

func computeFIFOQueue(kc *Context) error {
	capacity, err := kc.Op.AttrInt("capacity", resources.DefaultQueueCapacity)
	if err != nil {
		return err
	}
	entry, err := kc.create(resources.KindQueue, func() (any, error) {
		return resources.NewQueue(capacity), nil
	})
	if err != nil {
		return err
	}
	kc.SetOutput(0, tensor.HandleTo(entry.Name))
	return nil
}

func queueFor(kc *Context) (*resources.Queue, error) {
	entry, err := kc.lookup(0, resources.KindQueue)
	if err != nil {
		return nil, err
	}
	return entry.Handle.(*resources.Queue), nil
}

func computeEnqueue(kc *Context) error {
	q, err := queueFor(kc)
	if err != nil {
		return err
	}
	value, err := kc.Input(1)
	if err != nil {
		return err
	}
	return q.Enqueue(kc.Abort, value)
}

// computeDequeue blocks until an element arrives. Only queue closure or a
// step abort ends the wait early.
func computeDequeue(kc *Context) error {
	q, err := queueFor(kc)
	if err != nil {
		return err
	}
	t, err := q.Dequeue(kc.Abort)
	if err != nil {
		return err
	}
	kc.SetOutput(0, t)
	return nil
}

func computeQueueClose(kc *Context) error {
	q, err := queueFor(kc)
	if err != nil {
		return err
	}
	return q.Close()
}

func computeQueueSize(kc *Context) error {
	q, err := queueFor(kc)
	if err != nil {
		return err
	}
	kc.SetOutput(0, tensor.Scalar(tensor.Int32, float64(q.Size())))
	return nil
}
