package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_FoldsRepeatsPastLimit(t *testing.T) {
	r := NewRecorder("step", 2)
	now := time.Now()

	r.Record(&NodeExecStats{NodeName: "a", Start: now, Elapsed: time.Microsecond})
	r.Record(&NodeExecStats{NodeName: "b", Start: now, Elapsed: time.Microsecond})
	r.Record(&NodeExecStats{NodeName: "a", Start: now, Elapsed: 2 * time.Microsecond})
	r.Record(&NodeExecStats{NodeName: "c", Start: now, Elapsed: time.Microsecond})

	stats := r.Finish()
	require.Len(t, stats.Nodes, 3)
	assert.Equal(t, "a", stats.Nodes[0].NodeName)
	assert.Equal(t, 2, stats.Nodes[0].Executions)
	assert.Equal(t, 3*time.Microsecond, stats.Nodes[0].Elapsed)
	assert.Equal(t, "c", stats.Nodes[2].NodeName, "new nodes are always appended")
	assert.False(t, stats.End.IsZero())
}

func TestStepStats_Sorted(t *testing.T) {
	base := time.Now()
	s := &StepStats{Nodes: []*NodeExecStats{
		{NodeName: "late", Start: base.Add(time.Second)},
		{NodeName: "early", Start: base},
	}}

	sorted := s.Sorted()
	assert.Equal(t, "early", sorted[0].NodeName)
	assert.Equal(t, "late", s.Nodes[0].NodeName, "original order untouched")
}
