package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/cluster"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/inputs"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestRun_CostModel(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := testutil.NewCluster(t, ctx, 5*time.Second, 3, 0)

	item, err := inputs.NewTrivial(4, 1, 10, false, c.DeviceNames()).NextItem()
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx, item))

	var md cluster.RunMetadata
	start := time.Now()
	_, err = c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &md)
	require.NoError(t, err)
	elapsed := time.Since(start)

	external := md.CostGraph.External()
	assert.GreaterOrEqual(t, len(external), 4, "one entry per stage at least")
	for _, node := range external {
		require.Len(t, node.Outputs, 1, node.Name)
		out := node.Outputs[0]
		assert.GreaterOrEqual(t, out.Bytes, int64(8), node.Name)
		assert.Equal(t, []int{10, 1}, out.Shape, node.Name)
		assert.GreaterOrEqual(t, node.ComputeCost, int64(0), node.Name)
		assert.LessOrEqual(t, node.ComputeCost, elapsed.Microseconds(), node.Name)
	}

	_, ok := md.CostGraph.Node("_SOURCE")
	assert.True(t, ok, "internal records are kept")
	assert.NotNil(t, md.StepStats)
	assert.LessOrEqual(t, md.WallClock, elapsed)
}

func TestRun_Queue(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := testutil.NewCluster(t, ctx, 5*time.Second, 3, 0)

	item, err := inputs.NewTrivial(4, 1, 10, true, c.DeviceNames()).NextItem()
	require.NoError(t, err)
	require.NoError(t, c.Initialize(ctx, item))

	var md cluster.RunMetadata
	out, err := c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &md)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 1}, []int(out["y"].Shape))

	for _, name := range []string{"enqueue", "dequeue", "queue", "y"} {
		_, ok := md.CostGraph.Node(name)
		assert.True(t, ok, "%s is missing from the cost graph", name)
	}

	_, err = c.Run(ctx, item.Graph, item.Feeds, item.Fetches, nil)
	require.NoError(t, err, "the queue runner keeps the queue fed")
}

func TestRun_MultipleItems(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := testutil.NewCluster(t, ctx, 5*time.Second, 3, 0)
	yielder := inputs.NewTrivial(4, 1, 10, false, c.DeviceNames())

	for i := 0; i < 3; i++ {
		item, err := yielder.NextItem()
		require.NoError(t, err)
		require.NoError(t, c.Initialize(ctx, item))

		var first, second cluster.RunMetadata
		_, err = c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &first)
		require.NoError(t, err)
		_, err = c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &second)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(first.CostGraph.External()), 4)
		for _, node := range first.CostGraph.External() {
			require.Len(t, node.Outputs, 1, node.Name)
			assert.Equal(t, []int{10, 1}, node.Outputs[0].Shape, node.Name)
		}

		a, err := first.CostGraph.WithoutTimings().YAML()
		require.NoError(t, err)
		b, err := second.CostGraph.WithoutTimings().YAML()
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "runs of the same item must describe the same graph")
	}
}

// The graph checks at run time that reshaping a [2,3] tensor into [3,-1]
// gives [3,2]. With the optimizer off, every operation must execute.
func TestRun_GraphOptimizationsDisabled(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := cluster.New()
	c.DisableOptimizer(true)
	require.NoError(t, c.Provision(ctx, 3*time.Second, 3, 0))
	t.Cleanup(func() { require.NoError(t, c.Shutdown(ctx)) })

	g := graphspec.New(
		constOp("zero", cty.NumberIntVal(0), "float32").WithAttr("shape", graphspec.Shape(2, 3)),
		constOp("one", cty.NumberIntVal(1), "float32").WithAttr("shape", graphspec.Shape(2, 3)),
		graphspec.Op("add", kernels.KindAdd, "zero", "one"),
		graphspec.Op("square", kernels.KindSquare, "add"),
		constOp("new_shape", graphspec.Numbers(3, -1), "int32"),
		graphspec.Op("reshaped", kernels.KindReshape, "square", "new_shape"),
		graphspec.Op("final_shape", kernels.KindShape, "reshaped"),
		constOp("expected_shape", graphspec.Numbers(3, 2), "int32"),
		graphspec.Op("valid", kernels.KindEqual, "final_shape", "expected_shape"),
		constOp("all_dims", graphspec.Numbers(0), "int32"),
		graphspec.Op("all_valid", kernels.KindAll, "valid", "all_dims"),
		graphspec.Op("assert_valid", kernels.KindAssert, "all_valid", "final_shape"),
	)
	item := graphspec.NewRunRequest(g, "assert_valid")
	require.NoError(t, c.Initialize(ctx, item))

	var md cluster.RunMetadata
	_, err := c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &md)
	require.NoError(t, err)

	var names []string
	for _, n := range md.CostGraph.External() {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t, []string{
		"zero", "one", "add", "square", "new_shape", "reshaped", "final_shape",
		"expected_shape", "valid", "all_dims", "all_valid", "assert_valid",
	}, names)
}

func TestRun_TimeOuts(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := cluster.New()
	require.NoError(t, c.Provision(ctx, 100*time.Millisecond, 3, 0))

	g := graphspec.New(
		graphspec.Op("queue", kernels.KindFIFOQueue),
		graphspec.Op("dequeue", kernels.KindQueueDequeue, "queue"),
	)
	item := graphspec.NewRunRequest(g, "dequeue")
	require.NoError(t, c.Initialize(ctx, item))

	for i := 0; i < 2; i++ {
		_, err := c.Run(ctx, item.Graph, item.Feeds, item.Fetches, nil)
		require.Error(t, err)
		assert.True(t, status.IsDeadlineExceeded(err), "run %d: got %v", i, err)
		assert.Equal(t, cluster.Initialized, c.State())
	}

	err := c.Initialize(ctx, item)
	assert.True(t, status.IsStateError(err), "abandoned runs block initialization, got %v", err)

	err = c.Shutdown(ctx)
	assert.True(t, status.IsUnavailable(err), "got %v", err)
	assert.Equal(t, cluster.Initialized, c.State())

	require.Eventually(t, func() bool { return c.Shutdown(ctx) == nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, cluster.ShutDown, c.State())
}

func TestRun_InfiniteLoops(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := cluster.New()
	require.NoError(t, c.Provision(ctx, 200*time.Millisecond, 2, 0))

	g := graphspec.New(
		constOp("one", cty.NumberIntVal(1), "float32"),
		constOp("zero", cty.NumberIntVal(0), "float32"),
		graphspec.Op("while/enter", kernels.KindEnter, "one"),
		graphspec.Op("while/zero", kernels.KindEnter, "zero").WithAttr("is_constant", cty.True),
		graphspec.Op("while/merge", kernels.KindMerge, "while/enter", "while/next"),
		graphspec.Op("while/greater", kernels.KindGreater, "while/merge", "while/zero"),
		graphspec.Op("while/cond", kernels.KindLoopCond, "while/greater"),
		graphspec.Op("while/switch", kernels.KindSwitch, "while/merge", "while/cond"),
		graphspec.Op("while/body", kernels.KindIdentity, "while/switch:1"),
		graphspec.Op("while/next", kernels.KindNextIteration, "while/body"),
		graphspec.Op("while/exit", kernels.KindExit, "while/switch"),
	)
	item := graphspec.NewRunRequest(g, "while/exit")
	require.NoError(t, c.Initialize(ctx, item))

	for i := 0; i < 2; i++ {
		_, err := c.Run(ctx, item.Graph, item.Feeds, item.Fetches, nil)
		assert.True(t, status.IsDeadlineExceeded(err), "run %d: got %v", i, err)
	}

	assert.True(t, status.IsUnavailable(c.Shutdown(ctx)))
	require.Eventually(t, func() bool { return c.Shutdown(ctx) == nil }, 5*time.Second, 10*time.Millisecond)
}

func TestRun_ComputeCostIsClampedToWallClock(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := testutil.NewCluster(t, ctx, 5*time.Second, 2, 0)

	item, err := inputs.NewTrivial(2, 3, 100, false, nil).NextItem()
	require.NoError(t, err)

	var md cluster.RunMetadata
	_, err = c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &md)
	require.NoError(t, err)

	limit := md.WallClock.Microseconds()
	for _, n := range md.CostGraph.Nodes {
		assert.LessOrEqual(t, n.ComputeCost, limit, n.Name)
	}
	assert.Len(t, md.CostGraph.External(), 1+2*3+1)
	assert.False(t, costmodel.IsInternal("stage0_0"))
}

func TestRun_ComputeCostGrowsWithWorkload(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	c := testutil.NewCluster(t, ctx, 10*time.Second, 2, 0)

	// Cheapest of three runs per size.
	cheapest := func(size int) int64 {
		item, err := inputs.NewTrivial(3, 2, size, false, nil).NextItem()
		require.NoError(t, err)
		best := int64(-1)
		for i := 0; i < 3; i++ {
			var md cluster.RunMetadata
			_, err := c.Run(ctx, item.Graph, item.Feeds, item.Fetches, &md)
			require.NoError(t, err)
			var total int64
			for _, n := range md.CostGraph.External() {
				total += n.ComputeCost
			}
			if best < 0 || total < best {
				best = total
			}
		}
		return best
	}

	small := cheapest(10)
	large := cheapest(1 << 18)
	assert.GreaterOrEqual(t, large, small, "small=%dus large=%dus", small, large)
}
