// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines RunRequest, the unit a cluster is initialized with: a
// graph plus everything needed to drive it.
package graphspec

import (
	"github.com/google/uuid"
	"github.com/vk/burstcluster/internal/nodeid"
	"github.com/vk/burstcluster/internal/status"
	"github.com/vk/burstcluster/internal/tensor"
)

// QueueRunner keeps a queue fed in the background. Each pass runs every
// enqueue op once; CancelOp, if set, closes the queue when the runner stops.
type QueueRunner struct {
	Queue      string
	EnqueueOps []string
	CancelOp   string
}

// RunRequest is a graph together with its feeds, fetches and init ops.
type RunRequest struct {
	ID           string
	Graph        *GraphSpec
	Feeds        map[string]tensor.Tensor
	Fetches      []string
	InitOps      []string
	QueueRunners []QueueRunner
}

// NewRunRequest builds a request with a fresh ID.
func NewRunRequest(g *GraphSpec, fetches ...string) *RunRequest {
	return &RunRequest{
		ID:      uuid.NewString(),
		Graph:   g,
		Feeds:   map[string]tensor.Tensor{},
		Fetches: fetches,
	}
}

// Validate checks the graph and that every named feed, fetch, init op and
// queue runner op exists in it.
func (r *RunRequest) Validate(kinds KindChecker) error {
	if r == nil {
		return status.Errorf(status.InvalidArgument, "run request is nil")
	}
	if err := r.Graph.Validate(kinds); err != nil {
		return err
	}

	check := func(what, raw string) error {
		ref, err := nodeid.Parse(raw)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "bad %s", what)
		}
		if _, ok := r.Graph.Lookup(ref.Node); !ok {
			return status.Errorf(status.InvalidArgument, "%s %q is not in the graph", what, raw)
		}
		return nil
	}

	for name := range r.Feeds {
		if err := check("feed", name); err != nil {
			return err
		}
	}
	for _, f := range r.Fetches {
		if err := check("fetch", f); err != nil {
			return err
		}
	}
	for _, op := range r.InitOps {
		if err := check("init op", op); err != nil {
			return err
		}
	}
	for _, qr := range r.QueueRunners {
		if len(qr.EnqueueOps) == 0 {
			return status.Errorf(status.InvalidArgument, "queue runner for %q has no enqueue ops", qr.Queue)
		}
		for _, op := range qr.EnqueueOps {
			if err := check("enqueue op", op); err != nil {
				return err
			}
		}
		if qr.CancelOp != "" {
			if err := check("queue cancel op", qr.CancelOp); err != nil {
				return err
			}
		}
	}
	return nil
}
