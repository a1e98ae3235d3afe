// Package graphhcl loads run requests written in HCL. A document is a set of
// top-level blocks that may be spread across any number of files:
//
//	node "y" {
//	  op     = "AddN"
//	  inputs = ["x", "stage0_0:0", "^init"]
//	  device = "/cpu:0"
//	  attrs  = { dtype = "float32" }
//	}
//
//	feed "x:0" {
//	  value = [[1], [2]]
//	  dtype = "float32"
//	}
//
//	queue_runner "queue" {
//	  enqueue_ops = ["enqueue"]
//	  cancel_op   = "close"
//	}
//
//	fetch    = ["y"]
//	init_ops = ["init"]
//
// Nodes keep the order in which files and blocks were read.
package graphhcl
