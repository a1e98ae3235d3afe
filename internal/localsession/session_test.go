package localsession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/executor"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/session"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/workerpool"
)

func TestNewSession_RequiresPool(t *testing.T) {
	_, err := (&SessionFactory{}).NewSession(context.Background(), session.Config{})
	assert.True(t, status.IsInvalidArgument(err))
}

func TestSession_SharesResourcesAcrossSteps(t *testing.T) {
	ctx := context.Background()
	pool, err := workerpool.New(2, 0)
	require.NoError(t, err)

	s, err := (&SessionFactory{}).NewSession(ctx, session.Config{Pool: pool})
	require.NoError(t, err)
	exec, err := s.GetExecutor()
	require.NoError(t, err)

	g := graphspec.New(graphspec.Op("queue", kernels.KindFIFOQueue))
	_, err = exec.Execute(ctx, &executor.Step{ID: "one", Graph: g, Targets: []string{"queue"}})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, &executor.Step{ID: "two", Graph: g, Targets: []string{"queue"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"queue"}, s.Resources().Names())
	assert.Equal(t, 0, s.Outstanding())

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, s.Resources().Len())
	assert.True(t, pool.Closed())
}
