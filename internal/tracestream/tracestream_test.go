package tracestream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_KeepsEvents(t *testing.T) {
	var m Memory
	m.Publish(context.Background(), EventRunCompleted, RunSummary{RunID: "r1", Status: "OK"})
	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventRunCompleted, events[0].Name)
	assert.Equal(t, "r1", events[0].Payload.(RunSummary).RunID)
	assert.NoError(t, m.Close())
}

func TestDial_RejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url", Options{})
	assert.Error(t, err)
}

func TestSocketIO_PublishNeverBlocks(t *testing.T) {
	// Nothing listens on port 1; the client keeps retrying in the background.
	s, err := Dial(context.Background(), "http://127.0.0.1:1/socket.io/", Options{Buffer: 2})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.Publish(context.Background(), EventRunCompleted, RunSummary{RunID: "r"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Publish(context.Background(), EventRunCompleted, RunSummary{RunID: "late"})
}

func TestSocketIO_PublishRacingClose(t *testing.T) {
	s, err := Dial(context.Background(), "http://127.0.0.1:1/socket.io/", Options{Buffer: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Publish(context.Background(), EventRunCompleted, RunSummary{RunID: "r"})
			}
		}()
	}
	require.NoError(t, s.Close())
	wg.Wait()
}
