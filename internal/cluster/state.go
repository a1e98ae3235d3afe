package cluster

import (
	"fmt"
	"slices"

	"github.com/vk/burstcluster/internal/status"
)

// State is the lifecycle state of a cluster.
type State int

const (
	Created State = iota
	Provisioned
	Initialized
	Running
	ShutDown
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Provisioned:
		return "PROVISIONED"
	case Initialized:
		return "INITIALIZED"
	case Running:
		return "RUNNING"
	case ShutDown:
		return "SHUT_DOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// allowedTransitions is the lifecycle graph. Running always returns to
// Initialized, whether the run succeeded, failed or timed out.
var allowedTransitions = map[State][]State{
	Created:     {Provisioned},
	Provisioned: {Initialized, Running, ShutDown},
	Initialized: {Initialized, Running, ShutDown},
	Running:     {Initialized},
}

// transition moves the cluster to the next state. The caller holds c.mu.
func (c *Cluster) transition(to State) error {
	from := c.state
	if !slices.Contains(allowedTransitions[from], to) {
		return status.Errorf(status.Internal, "disallowed cluster transition: %s -> %s", from, to)
	}
	c.state = to
	return nil
}

// requireState fails with FailedPrecondition unless the cluster is in one of
// the given states. The caller holds c.mu.
func (c *Cluster) requireState(op string, states ...State) error {
	if slices.Contains(states, c.state) {
		return nil
	}
	return status.Errorf(status.FailedPrecondition, "cannot %s a cluster in state %s", op, c.state)
}
