package scheduler

import (
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// Activation is one ready execution of a node.
type Activation struct {
	Node *Node
	// Inputs holds the data inputs in order. For Merge, only the input whose
	// Dead flag is false carries a value.
	Inputs []tensor.Tensor
	Dead   []bool
}

// Output is one output slot reported back after execution.
type Output struct {
	Value    tensor.Tensor
	Produced bool
	Dead     bool
}

type value struct {
	t    tensor.Tensor
	dead bool
}

type slotState struct {
	queue     []value
	sticky    *value
	deadCount int
}

func (s *slotState) ready() bool {
	return s.sticky != nil || len(s.queue) > 0
}

type nodeState struct {
	slots    []slotState
	running  bool
	fired    bool
	executed bool
}

// State tracks one step's progress over a Plan.
type State struct {
	plan    *Plan
	nodes   []nodeState
	fetched map[string]tensor.Tensor
	wanted  map[int][]int
}

// NewState prepares a fresh step over plan.
func NewState(plan *Plan) *State {
	s := &State{
		plan:    plan,
		nodes:   make([]nodeState, len(plan.Nodes)),
		fetched: make(map[string]tensor.Tensor),
		wanted:  make(map[int][]int),
	}
	for i, n := range plan.Nodes {
		s.nodes[i].slots = make([]slotState, len(n.Inputs))
	}
	for _, f := range plan.Fetches {
		n := plan.byName[f.Node]
		s.wanted[n.Index] = append(s.wanted[n.Index], f.Output)
	}
	return s
}

// Start returns the activations of every node without inputs.
func (s *State) Start() []Activation {
	var check []int
	for _, n := range s.plan.Nodes {
		if len(n.Inputs) == 0 {
			check = append(check, n.Index)
		}
	}
	return s.drain(check)
}

// Complete records a finished execution and returns the nodes it made ready.
func (s *State) Complete(n *Node, outputs []Output) ([]Activation, error) {
	st := &s.nodes[n.Index]
	st.running = false
	st.executed = true

	var check []int
	for key, refs := range n.consumers {
		v := value{}
		if key != controlSlot {
			if key >= len(outputs) || !outputs[key].Produced {
				return nil, status.Errorf(status.Internal, "%s %q did not produce output %d", n.Op.Kind, n.Name, key)
			}
			v = value{t: outputs[key].Value, dead: outputs[key].Dead}
		}
		check = append(check, s.deliver(refs, v)...)
	}

	for _, slot := range s.wanted[n.Index] {
		if slot < len(outputs) && outputs[slot].Produced && !outputs[slot].Dead {
			s.fetched[nodeid.NewAddress(n.Name, slot).Key()] = outputs[slot].Value
		}
	}

	check = append(check, n.Index)
	return s.drain(check), nil
}

// Fail marks a node as no longer running without delivering anything.
func (s *State) Fail(n *Node) {
	s.nodes[n.Index].running = false
}

// Fetch returns the last live value produced for a fetch.
func (s *State) Fetch(addr nodeid.Address) (tensor.Tensor, bool) {
	t, ok := s.fetched[addr.Key()]
	return t, ok
}

// Executed reports whether the named node completed a live execution.
func (s *State) Executed(name string) bool {
	n, ok := s.plan.byName[name]
	return ok && s.nodes[n.Index].executed
}

func (s *State) deliver(refs []edgeRef, v value) []int {
	touched := make([]int, 0, len(refs))
	for _, ref := range refs {
		consumer := s.plan.Nodes[ref.node]
		slot := &s.nodes[ref.node].slots[ref.slot]
		switch {
		case consumer.Inputs[ref.slot].Sticky:
			vv := v
			slot.sticky = &vv
		case consumer.IsMerge && !consumer.Inputs[ref.slot].Control && v.dead:
			slot.deadCount++
		default:
			slot.queue = append(slot.queue, v)
		}
		touched = append(touched, ref.node)
	}
	return touched
}

// drain fires every node in check that is ready, following dead
// propagation transitively, and returns the live activations.
func (s *State) drain(check []int) []Activation {
	var out []Activation
	for len(check) > 0 {
		idx := check[0]
		check = check[1:]
		for {
			act, dead, ok := s.tryFire(idx)
			if !ok {
				break
			}
			if !dead {
				out = append(out, act)
				break
			}
			check = append(check, s.propagateDead(s.plan.Nodes[idx])...)
		}
	}
	return out
}

func (s *State) propagateDead(n *Node) []int {
	var touched []int
	for _, refs := range n.consumers {
		touched = append(touched, s.deliver(refs, value{dead: true})...)
	}
	return touched
}

func pop(slot *slotState) value {
	if slot.sticky != nil {
		return *slot.sticky
	}
	v := slot.queue[0]
	slot.queue = slot.queue[1:]
	return v
}

func (s *State) tryFire(idx int) (Activation, bool, bool) {
	n := s.plan.Nodes[idx]
	st := &s.nodes[idx]
	if st.running {
		return Activation{}, false, false
	}
	if n.IsMerge {
		return s.tryFireMerge(n, st)
	}

	allSticky := true
	for i := range st.slots {
		if !st.slots[i].ready() {
			return Activation{}, false, false
		}
		if !n.Inputs[i].Sticky {
			allSticky = false
		}
	}
	if allSticky && st.fired {
		return Activation{}, false, false
	}

	act := Activation{Node: n}
	dead := false
	for i := range st.slots {
		v := pop(&st.slots[i])
		dead = dead || v.dead
		if !n.Inputs[i].Control {
			act.Inputs = append(act.Inputs, v.t)
			act.Dead = append(act.Dead, v.dead)
		}
	}
	st.fired = true
	if !dead {
		st.running = true
	}
	return act, dead, true
}

func (s *State) tryFireMerge(n *Node, st *nodeState) (Activation, bool, bool) {
	live := -1
	allDead := n.numData > 0
	for i := range st.slots {
		in := n.Inputs[i]
		slot := &st.slots[i]
		if in.Control {
			if !slot.ready() {
				return Activation{}, false, false
			}
			continue
		}
		if live < 0 && len(slot.queue) > 0 {
			live = i
		}
		if slot.deadCount == 0 {
			allDead = false
		}
	}
	if live < 0 && !allDead {
		return Activation{}, false, false
	}

	act := Activation{Node: n}
	dead := false
	for i := range st.slots {
		in := n.Inputs[i]
		slot := &st.slots[i]
		if in.Control {
			dead = dead || pop(slot).dead
			continue
		}
		switch {
		case live >= 0 && i == live:
			v := pop(slot)
			act.Inputs = append(act.Inputs, v.t)
			act.Dead = append(act.Dead, v.dead)
		case live < 0:
			slot.deadCount--
			act.Inputs = append(act.Inputs, tensor.Tensor{})
			act.Dead = append(act.Dead, true)
		default:
			act.Inputs = append(act.Inputs, tensor.Tensor{})
			act.Dead = append(act.Dead, true)
		}
	}
	dead = dead || live < 0
	st.fired = true
	if !dead {
		st.running = true
	}
	return act, dead, true
}
