package resources

import (
	"sync"

	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// DefaultQueueCapacity applies when a queue is declared without a capacity.
const DefaultQueueCapacity = 1024

// Queue is a bounded first-in-first-out queue of tensors.
type Queue struct {
	items     chan tensor.Tensor
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates an open queue.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{items: make(chan tensor.Tensor, capacity), closed: make(chan struct{})}
}

// Enqueue blocks until there is room, the queue is closed, or abort fires.
func (q *Queue) Enqueue(abort <-chan struct{}, t tensor.Tensor) error {
	select {
	case <-q.closed:
		return status.Errorf(status.Cancelled, "enqueue on closed queue")
	default:
	}
	select {
	case q.items <- t:
		return nil
	case <-q.closed:
		return status.Errorf(status.Cancelled, "queue closed while enqueueing")
	case <-abort:
		return status.Errorf(status.Cancelled, "enqueue aborted")
	}
}

// Dequeue blocks until an element is available, the queue is closed and
// drained, or abort fires.
func (q *Queue) Dequeue(abort <-chan struct{}) (tensor.Tensor, error) {
	select {
	case t := <-q.items:
		return t, nil
	case <-q.closed:
		select {
		case t := <-q.items:
			return t, nil
		default:
			return tensor.Tensor{}, status.Errorf(status.OutOfRange, "queue is closed and has insufficient elements")
		}
	case <-abort:
		return tensor.Tensor{}, status.Errorf(status.Cancelled, "dequeue aborted")
	}
}

// Size is the number of queued elements.
func (q *Queue) Size() int {
	return len(q.items)
}

// Capacity is the maximum number of queued elements.
func (q *Queue) Capacity() int {
	return cap(q.items)
}

// IsClosed reports whether Close has been called.
func (q *Queue) IsClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Close rejects further enqueues and wakes blocked callers. It is idempotent.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
