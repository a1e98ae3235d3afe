// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package graphspec provides the in-memory representation of a dataflow graph
// and of the request that asks a cluster to run it.
//
// # Core Concepts
//
//   - Operation: one named unit of work with an operator kind, an attribute
//     map of cty values, ordered input references and an optional device.
//
//   - GraphSpec: an immutable set of operations. Operations refer to each
//     other by name, so cycles built from loop-control kinds are representable
//     without any special structure.
//
//   - RunRequest: a graph plus its feeds, fetches, init ops and queue runners.
//
// Why cty for attributes?
//
// Attributes arrive either from HCL files or from Go code. Holding them as
// cty values lets both sources share one representation and one fingerprint.
package graphspec
