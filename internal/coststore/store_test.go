package coststore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/cluster"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "costs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGraph() *costmodel.CostGraph {
	return &costmodel.CostGraph{Nodes: []*costmodel.Node{
		{Name: "_SOURCE", Device: "/device:CPU:0", Kind: "_SOURCE"},
		{
			Name: "x", Device: "/device:CPU:0", Kind: "RandomNormal",
			Outputs:     []costmodel.OutputInfo{{DType: "float32", Shape: []int{10, 1}, Bytes: 40}},
			ComputeCost: 12, Executions: 1,
		},
		{
			Name: "initialize_table", Device: "/device:CPU:0", Kind: "InitializeTable",
			ComputeCost: 3, HostPersistentMemory: 32, Executions: 1,
		},
	}}
}

func TestOpen_Reopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	mem, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, mem.Close())
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	g := sampleGraph()

	require.NoError(t, s.SaveRun(ctx, "baseline", "run-1", g))
	got, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(g, got); diff != "" {
		t.Errorf("cost graph changed in storage (-want +got):\n%s", diff)
	}

	err = s.SaveRun(ctx, "baseline", "run-1", g)
	assert.True(t, status.IsAlreadyExists(err), "got %v", err)

	_, err = s.LoadRun(ctx, "missing")
	assert.Equal(t, status.NotFound, status.CodeOf(err))

	assert.True(t, status.IsInvalidArgument(s.SaveRun(ctx, "baseline", "", g)))
	assert.True(t, status.IsInvalidArgument(s.SaveRun(ctx, "baseline", "run-2", nil)))
}

func TestListAndDeleteRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveRun(ctx, "baseline", "a", sampleGraph()))
	require.NoError(t, s.SaveRun(ctx, "optimized", "b", sampleGraph()))
	require.NoError(t, s.SaveRun(ctx, "baseline", "c", sampleGraph()))

	runs, err := s.ListRuns(ctx, "baseline")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].RunID)
	assert.Equal(t, "c", runs[1].RunID)
	assert.WithinDuration(t, time.Now(), runs[0].CreatedAt, time.Minute)

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeleteRun(ctx, "a"))
	require.NoError(t, s.DeleteRun(ctx, "a"))
	_, err = s.LoadRun(ctx, "a")
	assert.Equal(t, status.NotFound, status.CodeOf(err))

	var nodes int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM cost_nodes WHERE run_id = 'a'`).Scan(&nodes))
	assert.Zero(t, nodes, "nodes are deleted with their run")
}

func TestDiff(t *testing.T) {
	before := sampleGraph()
	after := sampleGraph()
	after.Nodes[1].ComputeCost = 2
	after.Nodes = append(after.Nodes[:2], &costmodel.Node{Name: "folded", Kind: "Const", ComputeCost: 1})

	deltas := Diff(before, after)
	require.Len(t, deltas, 3)

	assert.Equal(t, "folded", deltas[0].Name)
	assert.True(t, deltas[0].Added())
	assert.Equal(t, int64(1), deltas[0].ComputeCost)

	assert.Equal(t, "initialize_table", deltas[1].Name)
	assert.True(t, deltas[1].Removed())
	assert.Equal(t, int64(-32), deltas[1].HostPersistentMemory)

	assert.Equal(t, "x", deltas[2].Name)
	assert.False(t, deltas[2].Added() || deltas[2].Removed())
	assert.Equal(t, int64(-10), deltas[2].ComputeCost)
}

func TestCompare_OptimizedAgainstBaseline(t *testing.T) {
	ctx, _ := testutil.NewTestContext(t)
	s := openStore(t)

	g := graphspec.New(
		graphspec.Op("two", kernels.KindConst).WithAttr("value", cty.NumberIntVal(2)),
		graphspec.Op("four", kernels.KindSquare, "two"),
		graphspec.Op("noise", kernels.KindRandomUniform).WithAttr("shape", graphspec.Shape(4)),
		graphspec.Op("scaled", kernels.KindMul, "noise", "four"),
	)

	runWith := func(label string, disable bool) string {
		c := cluster.New(cluster.WithCostRecorder(s, label))
		c.DisableOptimizer(disable)
		require.NoError(t, c.Provision(ctx, 3*time.Second, 2, 0))
		defer func() { require.NoError(t, c.Shutdown(ctx)) }()

		var md cluster.RunMetadata
		_, err := c.Run(ctx, g, nil, []string{"scaled"}, &md)
		require.NoError(t, err)
		return md.RunID
	}
	baseline := runWith("baseline", true)
	optimized := runWith("optimized", false)

	deltas, err := s.Compare(ctx, baseline, optimized)
	require.NoError(t, err)

	byName := make(map[string]NodeDelta)
	for _, d := range deltas {
		byName[d.Name] = d
	}
	assert.True(t, byName["two"].Removed(), "the folded input is pruned")
	require.NotNil(t, byName["four"].After)
	assert.Equal(t, kernels.KindConst, byName["four"].After.Kind)
	assert.Equal(t, kernels.KindSquare, byName["four"].Before.Kind)
	assert.False(t, byName["scaled"].Removed())
}
