// internal/nodeid/doc.go

/*
Package nodeid provides a structured, type-safe representation for references
between operations in a dataflow graph.

Three forms are accepted:

	name      output 0 of operation `name`
	name:k    output k of operation `name`
	^name     a control dependency on `name` (no data flows)

Operation names are slash-separated scopes such as `while/add` and may begin
with an underscore for executor-inserted bookkeeping nodes.

This package centralizes all formatting and parsing of references so the
graph, the executor and the loader agree on one syntax.
*/
package nodeid
