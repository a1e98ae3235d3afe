package resources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

func TestLookupOrCreate_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	r := New()
	var creations atomic.Int32

	create := func() (any, error) {
		creations.Add(1)
		return NewVariable(tensor.Float32, tensor.Shape{2}), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.LookupOrCreate(ctx, "v", KindVariable, "fp", "v", create)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), creations.Load(), "Resource should be created exactly once")
	assert.Equal(t, 1, r.Len())
}

func TestLookupOrCreate_Conflicts(t *testing.T) {
	ctx := context.Background()
	r := New()
	_, created, err := r.LookupOrCreate(ctx, "shared", KindTable, "fp1", "t1", func() (any, error) {
		return NewTable(tensor.Int64, tensor.Int64), nil
	})
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = r.LookupOrCreate(ctx, "shared", KindQueue, "fp1", "q", func() (any, error) { return NewQueue(1), nil })
	assert.True(t, status.IsInvalidArgument(err))

	_, _, err = r.LookupOrCreate(ctx, "shared", KindTable, "fp2", "t2", func() (any, error) { return nil, nil })
	assert.True(t, status.IsInvalidArgument(err))

	_, _, err = r.LookupOrCreate(ctx, "broken", KindTable, "fp", "t", func() (any, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	_, ok := r.Get("broken")
	assert.False(t, ok, "failed creation must not leave an entry")
}

func TestMarkInitialized(t *testing.T) {
	ctx := context.Background()
	r := New()
	assert.Error(t, r.MarkInitialized("t", "init"))

	_, _, err := r.LookupOrCreate(ctx, "t", KindTable, "", "t", func() (any, error) {
		return NewTable(tensor.Int64, tensor.Int64), nil
	})
	require.NoError(t, err)
	assert.False(t, r.Initialized("t"))

	require.NoError(t, r.MarkInitialized("t", "initialize_table"))
	assert.True(t, r.Initialized("t"))
	by, ok := r.InitializedBy("t")
	assert.True(t, ok)
	assert.Equal(t, "initialize_table", by)
}

func TestReleaseAll_ClosesQueuesAndForgets(t *testing.T) {
	ctx := context.Background()
	r := New()
	entry, _, err := r.LookupOrCreate(ctx, "q", KindQueue, "", "q", func() (any, error) { return NewQueue(1), nil })
	require.NoError(t, err)
	q := entry.Handle.(*Queue)

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(nil)
		done <- err
	}()

	require.NoError(t, r.ReleaseAll(ctx))
	select {
	case err := <-done:
		assert.True(t, status.IsOutOfRange(err))
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue was not woken by release")
	}
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Names())
}

func TestQueue_FIFOAndAbort(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Enqueue(nil, tensor.Scalar(tensor.Int32, 1)))
	require.NoError(t, q.Enqueue(nil, tensor.Scalar(tensor.Int32, 2)))
	assert.Equal(t, 2, q.Size())

	first, err := q.Dequeue(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, first.Values)

	require.NoError(t, q.Enqueue(nil, tensor.Scalar(tensor.Int32, 3)))

	abort := make(chan struct{})
	close(abort)
	err = q.Enqueue(abort, tensor.Scalar(tensor.Int32, 4))
	assert.True(t, status.IsCancelled(err))

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.True(t, status.IsCancelled(q.Enqueue(nil, tensor.Scalar(tensor.Int32, 5))))

	second, err := q.Dequeue(nil)
	require.NoError(t, err, "closed queues still drain")
	assert.Equal(t, []float64{2}, second.Values)
}

func TestTable_InsertAndFind(t *testing.T) {
	table := NewTable(tensor.Int64, tensor.Int64)
	written, err := table.Insert(tensor.Vector(tensor.Int64, 123, 321), tensor.Vector(tensor.Int64, 789, 987))
	require.NoError(t, err)
	assert.Equal(t, int64(32), written)

	found := table.Find(tensor.Vector(tensor.Int64, 321, 5), -1)
	assert.Equal(t, []float64{987, -1}, found.Values)

	_, err = table.Insert(tensor.Vector(tensor.Int64, 1), tensor.Vector(tensor.Int64))
	assert.True(t, status.IsInvalidArgument(err))
}

func TestVariable_Store(t *testing.T) {
	v := NewVariable(tensor.Float32, tensor.Shape{2})
	_, ok := v.Load()
	assert.False(t, ok)

	require.NoError(t, v.Store(tensor.Vector(tensor.Float64, 1.5, 2.5)))
	got, ok := v.Load()
	require.True(t, ok)
	assert.Equal(t, tensor.Float32, got.DType)

	assert.Error(t, v.Store(tensor.Vector(tensor.Float32, 1)))
}

func TestTable_IntegerKeysExactUpTo2Pow53(t *testing.T) {
	table := NewTable(tensor.Int64, tensor.Int64)
	const top = 1 << 53
	_, err := table.Insert(tensor.Vector(tensor.Int64, top-1, top-2), tensor.Vector(tensor.Int64, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []float64{1, 2}, table.Find(tensor.Vector(tensor.Int64, top-1, top-2), -1).Values)
}
