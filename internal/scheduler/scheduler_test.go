package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
	"github.com/zclconf/go-cty/cty"
)

func compile(t *testing.T, req Request) *Plan {
	t.Helper()
	plan, err := Compile(req, kernels.Default(), devices.Topology{})
	require.NoError(t, err)
	return plan
}

// runSync drives a step on the calling goroutine, one activation at a time.
func runSync(t *testing.T, plan *Plan) (*State, map[string]int) {
	t.Helper()
	st := NewState(plan)
	runs := make(map[string]int)
	queue := st.Start()
	for len(queue) > 0 {
		act := queue[0]
		queue = queue[1:]
		runs[act.Node.Name]++

		var outs []Output
		if act.Node.IsFed() {
			outs = make([]Output, 1)
			for slot, v := range act.Node.Fed {
				for len(outs) <= slot {
					outs = append(outs, Output{})
				}
				outs[slot] = Output{Value: v, Produced: true}
			}
		} else {
			kc := &kernels.Context{Op: act.Node.Op, Inputs: act.Inputs, Dead: act.Dead}
			require.NoError(t, act.Node.Kernel.Compute(kc))
			for i := 0; i < kc.NumOutputs(); i++ {
				v, _ := kc.Output(i)
				outs = append(outs, Output{Value: v, Produced: kc.Produced(i), Dead: kc.IsDeadOutput(i)})
			}
		}

		next, err := st.Complete(act.Node, outs)
		require.NoError(t, err)
		queue = append(queue, next...)
		require.Less(t, runs[act.Node.Name], 1000, "runaway execution")
	}
	return st, runs
}

func constOp(name string, v float64) *graphspec.Operation {
	return graphspec.Op(name, kernels.KindConst).WithAttr("value", cty.NumberFloatVal(v))
}

func TestCompile_PrunesToFetches(t *testing.T) {
	g := graphspec.New(
		constOp("a", 1),
		constOp("b", 2),
		graphspec.Op("sum", kernels.KindAdd, "a", "b"),
		constOp("unused", 3),
		graphspec.Op("after", kernels.KindIdentity, "sum"),
	)
	plan := compile(t, Request{Graph: g, Fetches: []string{"sum"}})

	var names []string
	for _, n := range plan.Nodes {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"a", "b", "sum"}, names)
}

func TestCompile_Errors(t *testing.T) {
	g := graphspec.New(
		constOp("a", 1),
		graphspec.Op("two", kernels.KindSwitch, "a", "a"),
		graphspec.Op("use", kernels.KindIdentity, "two:1"),
		graphspec.Op("gpu", kernels.KindIdentity, "a").OnDevice("/gpu:0"),
		graphspec.Op("weird", "Frobnicate"),
	)

	testCases := []struct {
		name string
		req  Request
	}{
		{name: "nothing requested", req: Request{Graph: g}},
		{name: "unknown fetch", req: Request{Graph: g, Fetches: []string{"nope"}}},
		{name: "unknown feed", req: Request{Graph: g, Fetches: []string{"a"}, Feeds: map[string]tensor.Tensor{"ghost": tensor.Scalar(tensor.Float32, 1)}}},
		{name: "unfed output consumed", req: Request{Graph: g, Fetches: []string{"use"}, Feeds: map[string]tensor.Tensor{"two:0": tensor.Scalar(tensor.Float32, 1)}}},
		{name: "missing device", req: Request{Graph: g, Fetches: []string{"gpu"}}},
		{name: "unknown kind", req: Request{Graph: g, Targets: []string{"weird"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.req, kernels.Default(), devices.Topology{})
			require.Error(t, err)
			assert.True(t, status.IsInvalidArgument(err))
		})
	}
}

func TestState_FeedsReplaceOperations(t *testing.T) {
	g := graphspec.New(
		graphspec.Op("x", kernels.KindPlaceholder),
		graphspec.Op("y", kernels.KindSquare, "x"),
	)
	plan := compile(t, Request{
		Graph:   g,
		Feeds:   map[string]tensor.Tensor{"x:0": tensor.Vector(tensor.Float32, 3)},
		Fetches: []string{"y"},
	})

	st, runs := runSync(t, plan)
	y, ok := st.Fetch(nodeid.NewAddress("y", 0))
	require.True(t, ok)
	assert.Equal(t, []float64{9}, y.Values)
	assert.Equal(t, 1, runs["x"])
}

func countingLoop(limit float64) *graphspec.GraphSpec {
	return graphspec.New(
		constOp("zero", 0),
		constOp("limit", limit),
		constOp("one", 1),
		graphspec.Op("while/enter", kernels.KindEnter, "zero"),
		graphspec.Op("while/limit", kernels.KindEnter, "limit").WithAttr("is_constant", cty.True),
		graphspec.Op("while/one", kernels.KindEnter, "one").WithAttr("is_constant", cty.True),
		graphspec.Op("while/merge", kernels.KindMerge, "while/enter", "while/next"),
		graphspec.Op("while/less", kernels.KindLess, "while/merge", "while/limit"),
		graphspec.Op("while/cond", kernels.KindLoopCond, "while/less"),
		graphspec.Op("while/switch", kernels.KindSwitch, "while/merge", "while/cond"),
		graphspec.Op("while/add", kernels.KindAdd, "while/switch:1", "while/one"),
		graphspec.Op("while/next", kernels.KindNextIteration, "while/add"),
		graphspec.Op("while/exit", kernels.KindExit, "while/switch"),
	)
}

func TestState_LoopRunsOncePerIteration(t *testing.T) {
	plan := compile(t, Request{Graph: countingLoop(3), Fetches: []string{"while/exit"}})

	st, runs := runSync(t, plan)
	out, ok := st.Fetch(nodeid.NewAddress("while/exit", 0))
	require.True(t, ok)
	assert.Equal(t, []float64{3}, out.Values)

	assert.Equal(t, 4, runs["while/merge"])
	assert.Equal(t, 3, runs["while/add"])
	assert.Equal(t, 1, runs["while/limit"])
	assert.Equal(t, 1, runs["while/exit"], "dead activations are not returned")
	assert.True(t, st.Executed("while/exit"))
}

func TestState_ControlDependencies(t *testing.T) {
	g := graphspec.New(
		constOp("first", 1),
		graphspec.Op("second", kernels.KindNoOp, "^first"),
		graphspec.Op("third", kernels.KindIdentity, "first", "^second"),
	)
	plan := compile(t, Request{Graph: g, Fetches: []string{"third"}})
	third, ok := plan.Lookup("third")
	require.True(t, ok)
	assert.Equal(t, 1, third.NumDataInputs())

	st := NewState(plan)
	acts := st.Start()
	require.Len(t, acts, 1)
	assert.Equal(t, "first", acts[0].Node.Name)

	kc := &kernels.Context{Op: acts[0].Node.Op}
	require.NoError(t, acts[0].Node.Kernel.Compute(kc))
	v, _ := kc.Output(0)
	next, err := st.Complete(acts[0].Node, []Output{{Value: v, Produced: true}})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "second", next[0].Node.Name, "third still waits on the control edge")

	next, err = st.Complete(next[0].Node, nil)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "third", next[0].Node.Name)
}

func TestState_MissingOutputIsInternal(t *testing.T) {
	g := graphspec.New(
		constOp("a", 1),
		graphspec.Op("b", kernels.KindIdentity, "a"),
	)
	plan := compile(t, Request{Graph: g, Fetches: []string{"b"}})
	st := NewState(plan)
	acts := st.Start()
	require.Len(t, acts, 1)

	_, err := st.Complete(acts[0].Node, nil)
	assert.Equal(t, status.Internal, status.CodeOf(err))
}
