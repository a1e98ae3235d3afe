// Package watchdog bounds how long the caller waits for a unit of work.
//
// Work that overruns its deadline is not killed: Go cannot preempt a
// goroutine. The caller gets DeadlineExceeded right away and an Orphan
// handle that reports when the abandoned execution finally returns.
package watchdog

import (
	"context"
	"time"

	"github.com/vk/burstcluster/internal/status"
)

// Orphan is an execution the caller stopped waiting for.
type Orphan struct {
	Label   string
	Started time.Time
	done    chan struct{}
}

// Done is closed once the execution has returned.
func (o *Orphan) Done() <-chan struct{} {
	return o.done
}

// Finished reports whether the execution has returned.
func (o *Orphan) Finished() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

type result[T any] struct {
	value T
	err   error
}

// Run calls fn on its own goroutine and waits up to deadline for it. A
// non-positive deadline waits indefinitely. When the wait ends early, either
// by the deadline or by ctx, Run returns the zero value, a non-nil Orphan and
// DeadlineExceeded (or ctx's status). Panics in fn are reported as Internal.
func Run[T any](ctx context.Context, deadline time.Duration, label string, fn func() (T, error)) (T, *Orphan, error) {
	orphan := &Orphan{Label: label, Started: time.Now(), done: make(chan struct{})}
	results := make(chan result[T], 1)

	go func() {
		defer close(orphan.done)
		var r result[T]
		defer func() { results <- r }()
		defer func() {
			if p := recover(); p != nil {
				r.err = status.Errorf(status.Internal, "%s panicked: %v", label, p)
			}
		}()
		r.value, r.err = fn()
	}()

	var expired <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case r := <-results:
		return r.value, nil, r.err
	case <-expired:
		return zero, orphan, status.Errorf(status.DeadlineExceeded, "%s did not complete within %s", label, deadline)
	case <-ctx.Done():
		return zero, orphan, status.FromContext(ctx)
	}
}

// Drained reports whether every orphan has finished.
func Drained(orphans []*Orphan) bool {
	for _, o := range orphans {
		if !o.Finished() {
			return false
		}
	}
	return true
}

// Prune drops finished orphans, keeping the order of the rest.
func Prune(orphans []*Orphan) []*Orphan {
	kept := orphans[:0]
	for _, o := range orphans {
		if !o.Finished() {
			kept = append(kept, o)
		}
	}
	return kept
}
