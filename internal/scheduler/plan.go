package scheduler

import (
	"github.com/vk/burstcluster/internal/devices"
	"github.com/vk/burstcluster/internal/graphspec"
	"github.com/vk/burstcluster/internal/kernels"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// controlSlot is the consumers key used for control edges.
const controlSlot = -1

// Input is one incoming edge of a planned node.
type Input struct {
	From    int
	Output  int
	Control bool
	Sticky  bool
}

type edgeRef struct {
	node int
	slot int
}

// Node is one operation of a compiled step.
type Node struct {
	Index  int
	Name   string
	Op     *graphspec.Operation
	Kernel *kernels.Kernel
	Device devices.Device
	Inputs []Input
	// Fed holds the caller-supplied outputs of a fed operation. Fed
	// operations are not run; their inputs are not part of the plan.
	Fed     map[int]tensor.Tensor
	IsMerge bool

	consumers map[int][]edgeRef
	numData   int
}

// IsFed reports whether the node's outputs come from feeds.
func (n *Node) IsFed() bool {
	return n.Fed != nil
}

// NumDataInputs counts non-control inputs.
func (n *Node) NumDataInputs() int {
	return n.numData
}

// Plan is the pruned, resolved form of a graph for one step.
type Plan struct {
	Nodes   []*Node
	Fetches []nodeid.Address
	Targets []string

	byName map[string]*Node
}

// Lookup finds a planned node by operation name.
func (p *Plan) Lookup(name string) (*Node, bool) {
	n, ok := p.byName[name]
	return n, ok
}

// Request is what a step asks for.
type Request struct {
	Graph   *graphspec.GraphSpec
	Feeds   map[string]tensor.Tensor
	Fetches []string
	Targets []string
}

// Compile prunes the graph to what the fetches and targets need and resolves
// kernels, devices and edges.
func Compile(req Request, reg *kernels.Registry, topo devices.Topology) (*Plan, error) {
	g := req.Graph
	if g == nil {
		return nil, status.Errorf(status.InvalidArgument, "step has no graph")
	}
	if len(req.Fetches) == 0 && len(req.Targets) == 0 {
		return nil, status.Errorf(status.InvalidArgument, "step has no fetches or targets")
	}

	plan := &Plan{Targets: req.Targets, byName: make(map[string]*Node)}

	fed := make(map[string]map[int]tensor.Tensor)
	for key, value := range req.Feeds {
		addr, err := nodeid.Parse(key)
		if err != nil || addr.Control {
			return nil, status.Errorf(status.InvalidArgument, "invalid feed %q", key)
		}
		if _, ok := g.Lookup(addr.Node); !ok {
			return nil, status.Errorf(status.InvalidArgument, "feed %q does not name an operation in the graph", key)
		}
		if fed[addr.Node] == nil {
			fed[addr.Node] = make(map[int]tensor.Tensor)
		}
		fed[addr.Node][addr.Output] = value
	}

	var frontier []string
	for _, f := range req.Fetches {
		addr, err := nodeid.Parse(f)
		if err != nil || addr.Control {
			return nil, status.Errorf(status.InvalidArgument, "invalid fetch %q", f)
		}
		if _, ok := g.Lookup(addr.Node); !ok {
			return nil, status.Errorf(status.InvalidArgument, "fetch %q does not name an operation in the graph", f)
		}
		plan.Fetches = append(plan.Fetches, addr)
		frontier = append(frontier, addr.Node)
	}
	for _, target := range req.Targets {
		if _, ok := g.Lookup(target); !ok {
			return nil, status.Errorf(status.InvalidArgument, "target %q does not name an operation in the graph", target)
		}
		frontier = append(frontier, target)
	}

	needed := make(map[string]struct{})
	for len(frontier) > 0 {
		name := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if _, seen := needed[name]; seen {
			continue
		}
		needed[name] = struct{}{}
		if _, isFed := fed[name]; isFed {
			continue
		}
		op, _ := g.Lookup(name)
		refs, err := op.Refs()
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if _, ok := g.Lookup(ref.Node); !ok {
				return nil, status.Errorf(status.InvalidArgument, "operation %q has dangling input %q", name, ref.String())
			}
			frontier = append(frontier, ref.Node)
		}
	}

	for _, op := range g.Ops() {
		if _, ok := needed[op.Name]; !ok {
			continue
		}
		if _, dup := plan.byName[op.Name]; dup {
			return nil, status.Errorf(status.InvalidArgument, "duplicate operation name %q", op.Name)
		}
		k, ok := reg.Lookup(op.Kind)
		if !ok {
			return nil, status.Errorf(status.InvalidArgument, "operation %q has unknown kind %q", op.Name, op.Kind)
		}
		dev, err := topo.Resolve(op.Device)
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "operation %q", op.Name)
		}
		n := &Node{
			Index:     len(plan.Nodes),
			Name:      op.Name,
			Op:        op,
			Kernel:    k,
			Device:    dev,
			Fed:       fed[op.Name],
			IsMerge:   op.Kind == kernels.KindMerge,
			consumers: make(map[int][]edgeRef),
		}
		plan.Nodes = append(plan.Nodes, n)
		plan.byName[op.Name] = n
	}

	for _, n := range plan.Nodes {
		if n.IsFed() {
			continue
		}
		refs, _ := n.Op.Refs()
		for _, ref := range refs {
			from := plan.byName[ref.Node]
			if from.IsFed() && !ref.Control {
				if _, ok := from.Fed[ref.Output]; !ok {
					return nil, status.Errorf(status.InvalidArgument,
						"operation %q is fed but %q consumes its unfed output %d", from.Name, n.Name, ref.Output)
				}
			}
			in := Input{From: from.Index, Output: ref.Output, Control: ref.Control, Sticky: isConstantEnter(from.Op)}
			slot := len(n.Inputs)
			n.Inputs = append(n.Inputs, in)
			key := ref.Output
			if ref.Control {
				key = controlSlot
			} else {
				n.numData++
			}
			from.consumers[key] = append(from.consumers[key], edgeRef{node: n.Index, slot: slot})
		}
	}

	return plan, nil
}

func isConstantEnter(op *graphspec.Operation) bool {
	if op.Kind != kernels.KindEnter {
		return false
	}
	b, err := op.AttrBool("is_constant", false)
	return err == nil && b
}
