// internal/nodeid/types.go
package nodeid

// Address is the structured form of an input or fetch reference.
type Address struct {
	// Node is the name of the referenced operation.
	Node string
	// Output is the output slot; it is 0 for control references.
	Output int
	// Control marks a control-only dependency.
	Control bool
}

// NewAddress references output slot `output` of `node`.
func NewAddress(node string, output int) Address {
	return Address{Node: node, Output: output}
}

// NewControl references `node` as a control dependency.
func NewControl(node string) Address {
	return Address{Node: node, Control: true}
}
