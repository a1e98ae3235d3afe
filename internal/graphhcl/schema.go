package graphhcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes every top-level construct a file may contain.
type fileRoot struct {
	Nodes        []*nodeBlock        `hcl:"node,block"`
	Feeds        []*feedBlock        `hcl:"feed,block"`
	QueueRunners []*queueRunnerBlock `hcl:"queue_runner,block"`
	Fetch        []string            `hcl:"fetch,optional"`
	InitOps      []string            `hcl:"init_ops,optional"`
}

type nodeBlock struct {
	Name   string         `hcl:"name,label"`
	Op     string         `hcl:"op"`
	Inputs []string       `hcl:"inputs,optional"`
	Device string         `hcl:"device,optional"`
	Attrs  hcl.Expression `hcl:"attrs,optional"`
}

type feedBlock struct {
	Name  string         `hcl:"name,label"`
	Value hcl.Expression `hcl:"value"`
	DType string         `hcl:"dtype,optional"`
}

type queueRunnerBlock struct {
	Queue      string   `hcl:"queue,label"`
	EnqueueOps []string `hcl:"enqueue_ops"`
	CancelOp   string   `hcl:"cancel_op,optional"`
}
