// Package workerpool bounds how many operations run at once on a cluster:
// N compute worker slots shared by every operation, plus one slot per
// accelerator so that operations placed on the same device are serialized.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/status"
	"golang.org/x/sync/semaphore"
)

// Pool is a fixed set of worker and device slots.
type Pool struct {
	numWorkers int
	topology   devices.Topology
	workers    *semaphore.Weighted
	accel      []*semaphore.Weighted

	inUse     atomic.Int64
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New allocates a pool. numWorkers must be at least one; numDevices may be
// zero for a CPU-only cluster.
func New(numWorkers, numDevices int) (*Pool, error) {
	if numWorkers < 1 {
		return nil, status.Errorf(status.InvalidArgument, "worker count must be at least 1, got %d", numWorkers)
	}
	if numDevices < 0 {
		return nil, status.Errorf(status.InvalidArgument, "device count must not be negative, got %d", numDevices)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		numWorkers: numWorkers,
		topology:   devices.Topology{NumGPUs: numDevices},
		workers:    semaphore.NewWeighted(int64(numWorkers)),
		accel:      make([]*semaphore.Weighted, numDevices),
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range p.accel {
		p.accel[i] = semaphore.NewWeighted(1)
	}
	return p, nil
}

// NumWorkers is the worker slot count.
func (p *Pool) NumWorkers() int { return p.numWorkers }

// Topology describes the provisioned devices.
func (p *Pool) Topology() devices.Topology { return p.topology }

// InUse is the number of worker slots currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Acquire blocks until a worker slot (and the device slot, for accelerator
// placements) is free. It fails if ctx is done or the pool is closed. The
// returned release must be called exactly once.
func (p *Pool) Acquire(ctx context.Context, d devices.Device) (release func(), err error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	var accel *semaphore.Weighted
	if d.Type == devices.GPU {
		if d.Index < 0 || d.Index >= len(p.accel) {
			return nil, status.Errorf(status.InvalidArgument, "device %s is not provisioned", d.Name())
		}
		accel = p.accel[d.Index]
	}

	if err := p.workers.Acquire(actx, 1); err != nil {
		return nil, p.acquireError(ctx)
	}
	if accel != nil {
		if err := accel.Acquire(actx, 1); err != nil {
			p.workers.Release(1)
			return nil, p.acquireError(ctx)
		}
	}
	p.inUse.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inUse.Add(-1)
			if accel != nil {
				accel.Release(1)
			}
			p.workers.Release(1)
		})
	}, nil
}

func (p *Pool) acquireError(ctx context.Context) error {
	if p.ctx.Err() != nil {
		return status.Errorf(status.Cancelled, "worker pool is closed")
	}
	return status.FromContext(ctx)
}

// Close fails every pending and future Acquire. Slots already held stay
// valid until released.
func (p *Pool) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.ctx.Err() != nil
}
