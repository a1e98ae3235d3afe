package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/burstcluster/internal/status"
)

func TestTransition(t *testing.T) {
	testCases := []struct {
		from, to State
		allowed  bool
	}{
		{Created, Provisioned, true},
		{Created, Initialized, false},
		{Provisioned, Running, true},
		{Provisioned, ShutDown, true},
		{Initialized, Initialized, true},
		{Running, Initialized, true},
		{Running, ShutDown, false},
		{ShutDown, Provisioned, false},
	}
	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			c := &Cluster{state: tc.from}
			err := c.transition(tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				assert.Equal(t, tc.to, c.state)
				return
			}
			assert.Equal(t, status.Internal, status.CodeOf(err))
			assert.Equal(t, tc.from, c.state)
		})
	}
}

func TestRequireState(t *testing.T) {
	c := &Cluster{state: Running}
	err := c.requireState("run", Provisioned, Initialized)
	assert.True(t, status.IsStateError(err))
	assert.Contains(t, err.Error(), "RUNNING")
	assert.NoError(t, c.requireState("run", Running))
	assert.Equal(t, "State(42)", State(42).String())
}
