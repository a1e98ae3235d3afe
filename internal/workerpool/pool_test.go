package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/status"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	assert.True(t, status.IsInvalidArgument(err))
	_, err = New(1, -1)
	assert.True(t, status.IsInvalidArgument(err))

	p, err := New(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, p.NumWorkers())
	assert.Len(t, p.Topology().Names(), 3)
}

func TestAcquire_BoundsConcurrency(t *testing.T) {
	p, err := New(2, 0)
	require.NoError(t, err)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background(), devices.Host)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, p.InUse())
}

func TestAcquire_DeviceSlotIsExclusive(t *testing.T) {
	p, err := New(4, 1)
	require.NoError(t, err)
	gpu := devices.Device{Type: devices.GPU, Index: 0}

	release, err := p.Acquire(context.Background(), gpu)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, gpu)
	assert.True(t, status.IsDeadlineExceeded(err))
	assert.Equal(t, 1, p.InUse(), "worker slot taken by the failed attempt must be returned")

	release()
	release()
	assert.Equal(t, 0, p.InUse())

	_, err = p.Acquire(context.Background(), devices.Device{Type: devices.GPU, Index: 3})
	assert.True(t, status.IsInvalidArgument(err))
}

func TestClose_UnblocksWaiters(t *testing.T) {
	p, err := New(1, 0)
	require.NoError(t, err)
	release, err := p.Acquire(context.Background(), devices.Host)
	require.NoError(t, err)
	defer release()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), devices.Host)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.True(t, status.IsCancelled(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire was not unblocked by Close")
	}
	assert.True(t, p.Closed())
}
