// Package scheduler decides which operations of a step are ready to run.
//
// # Why Scheduler Exists
//
// The scheduler separates "what can run" from "how to run it". The executor
// owns goroutines, worker slots and tracing; the scheduler owns the dataflow
// rules that make an operation runnable:
//
//   - **Input Slots:** every data or control input of an operation is a FIFO
//     slot. An operation fires when each slot holds a value, and firing
//     consumes one value from each slot, so operations inside a loop body fire
//     once per iteration.
//   - **Loop Invariants:** values arriving through an Enter with
//     `is_constant = true` are sticky: they stay in the slot after firing.
//   - **Merge:** fires as soon as any data input holds a live value, and
//     forwards that one value.
//   - **Dead Values:** a Switch emits a dead value on its untaken branch. An
//     operation that receives a dead input does not run; it forwards deadness
//     to all of its consumers. Merge is dead only when every input is dead.
//
// # How It Works
//
// Compile prunes the graph to the operations needed by the fetches and
// targets, substitutes feeds, and resolves kernels and devices into a Plan.
// A State then drives one step:
//  1. Start returns the activations of operations with no inputs.
//  2. The executor runs each activation and reports its outputs via Complete.
//  3. Complete delivers outputs to consumer slots and returns every
//     operation that became ready.
//  4. The step is over when nothing is running and nothing is ready.
//
// # Thread-Safety
//
// Plan is read-only after Compile. State is not safe for concurrent use; the
// executor drives it from a single goroutine.
package scheduler
