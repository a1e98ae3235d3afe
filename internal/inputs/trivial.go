// Package inputs generates synthetic run requests for exercising a cluster.
package inputs

import (
	"fmt"
	"sync"

	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/zclconf/go-cty/cty"
)

// Trivial yields graphs made of NumStages chained stages of Width nodes
// each. Every node outputs a float32 tensor of shape [TensorSize, 1]. The
// first stage reads a random input x; every later node sums the whole
// previous stage; the fetch y sums the last stage.
//
// With InsertQueue, the last stage is pushed through a FIFO queue kept fed
// by a queue runner, and y sums the dequeued tensor instead.
type Trivial struct {
	NumStages   int
	Width       int
	TensorSize  int
	InsertQueue bool
	// Devices are assigned round robin across each stage. Empty means the
	// host CPU.
	Devices []string

	mu    sync.Mutex
	count int
}

// NewTrivial returns a yielder with the given shape.
func NewTrivial(numStages, width, tensorSize int, insertQueue bool, devices []string) *Trivial {
	return &Trivial{
		NumStages:   numStages,
		Width:       width,
		TensorSize:  tensorSize,
		InsertQueue: insertQueue,
		Devices:     devices,
	}
}

// NextItem builds a fresh request. Consecutive items describe the same graph
// but carry distinct IDs.
func (y *Trivial) NextItem() (*graphspec.RunRequest, error) {
	if y.NumStages < 1 || y.Width < 1 || y.TensorSize < 1 {
		return nil, fmt.Errorf("trivial graph needs positive stages, width and size, got %d/%d/%d",
			y.NumStages, y.Width, y.TensorSize)
	}
	y.mu.Lock()
	y.count++
	y.mu.Unlock()

	ops := []*graphspec.Operation{
		graphspec.Op("x", kernels.KindRandomNormal).
			WithAttr("shape", graphspec.Shape(y.TensorSize, 1)).
			WithAttr("dtype", cty.StringVal("float32")),
	}
	last := []string{"x"}
	for i := 0; i < y.NumStages; i++ {
		stage := make([]string, 0, y.Width)
		for j := 0; j < y.Width; j++ {
			name := fmt.Sprintf("stage%d_%d", i, j)
			kind := kernels.KindAddN
			if len(last) == 1 {
				kind = kernels.KindSign
			}
			ops = append(ops, graphspec.Op(name, kind, last...).OnDevice(y.device(j)))
			stage = append(stage, name)
		}
		last = stage
	}

	var runners []graphspec.QueueRunner
	if y.InsertQueue {
		sum := "enqueued"
		ops = append(ops, graphspec.Op(sum, kernels.KindAddN, last...))
		ops = append(ops,
			graphspec.Op("queue", kernels.KindFIFOQueue).WithAttr("capacity", cty.NumberIntVal(4)),
			graphspec.Op("enqueue", kernels.KindQueueEnqueue, "queue", sum),
			graphspec.Op("dequeue", kernels.KindQueueDequeue, "queue"),
			graphspec.Op("close", kernels.KindQueueClose, "queue"),
		)
		runners = append(runners, graphspec.QueueRunner{Queue: "queue", EnqueueOps: []string{"enqueue"}, CancelOp: "close"})
		last = []string{"dequeue"}
	}
	ops = append(ops, graphspec.Op("y", kernels.KindAddN, last...))

	item := graphspec.NewRunRequest(graphspec.New(ops...), "y")
	item.QueueRunners = runners
	return item, nil
}

// Count is the number of items yielded so far.
func (y *Trivial) Count() int {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.count
}

func (y *Trivial) device(j int) string {
	if len(y.Devices) == 0 {
		return ""
	}
	return y.Devices[j%len(y.Devices)]
}
