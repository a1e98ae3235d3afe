// Package testutil holds helpers shared by the package tests: captured
// logging, scratch files and a provisioned cluster fixture.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/burstcluster/internal/cluster"
	"github.com/vk/burstcluster/internal/config"
	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/vk/burstcluster/internal/status"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// NewTestContext returns a context carrying a debug logger that writes into
// the returned buffer. Set BURST_TEST_LOGS=true to dump the logs when the
// test finishes.
func NewTestContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	logs := &SafeBuffer{}
	logger := config.NewLogger("debug", "text", logs)
	t.Cleanup(func() {
		if os.Getenv("BURST_TEST_LOGS") == "true" {
			t.Logf("--- CAPTURED LOGS ---\n%s", logs.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), logs
}

// WriteFiles writes files, keyed by path relative to dir, creating any
// subdirectories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// NewCluster provisions a cluster and shuts it down when the test ends,
// retrying while abandoned executions drain.
func NewCluster(t *testing.T, ctx context.Context, deadline time.Duration, workers, devices int, opts ...cluster.Option) *cluster.Cluster {
	t.Helper()
	c := cluster.New(opts...)
	require.NoError(t, c.Provision(ctx, deadline, workers, devices))
	t.Cleanup(func() {
		require.Eventually(t, func() bool {
			return !status.IsUnavailable(c.Shutdown(ctx))
		}, 10*time.Second, 10*time.Millisecond, "cluster did not shut down")
	})
	return c
}
