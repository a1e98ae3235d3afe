package tracestream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"

	"github.com/vk/burstcluster/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultBuffer is how many events SocketIO holds before dropping.
const DefaultBuffer = 64

type message struct {
	event   string
	payload any
}

// SocketIO emits events on a socket.io connection from a background
// goroutine. Events that arrive while the buffer is full are dropped.
type SocketIO struct {
	io    *socket.Socket
	queue chan message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*SocketIO)(nil)

// Options tune the socket.io publisher.
type Options struct {
	Namespace          string
	Buffer             int
	InsecureSkipVerify bool
}

// Dial starts connecting to rawURL and returns immediately. The client
// buffers emits until the connection is established and reconnects on its
// own.
func Dial(ctx context.Context, rawURL string, o Options) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("component", "tracestream", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("trace stream URL %q needs a scheme and host", rawURL)
	}
	if o.Namespace == "" {
		o.Namespace = "/"
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Trace stream connected", "namespace", o.Namespace, "sid", io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			logger.Debug("Trace stream connection failed", "error", errs[0])
		}
	})

	s := &SocketIO{
		io:    io,
		queue: make(chan message, o.Buffer),
		done:  make(chan struct{}),
	}
	go s.loop()

	logger.Debug("Initiating trace stream connection.")
	io.Connect()
	return s, nil
}

func (s *SocketIO) loop() {
	defer close(s.done)
	for m := range s.queue {
		s.io.Emit(m.event, m.payload)
	}
}

// Publish queues the event for emission, dropping it if the buffer is full
// or the publisher is closed.
func (s *SocketIO) Publish(ctx context.Context, event string, payload any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		ctxlog.FromContext(ctx).Debug("Trace stream closed, event dropped.", "event", event)
		return
	}
	select {
	case s.queue <- message{event: event, payload: payload}:
	default:
		ctxlog.FromContext(ctx).Debug("Trace stream buffer full, event dropped.", "event", event)
	}
}

// Close flushes queued events and disconnects.
func (s *SocketIO) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	s.io.Disconnect()
	return nil
}
