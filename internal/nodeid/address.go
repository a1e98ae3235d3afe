// internal/nodeid/address.go
package nodeid

import "fmt"

// String serializes the Address into its canonical form. Output 0 is
// written without a slot suffix.
func (a Address) String() string {
	switch {
	case a.Control:
		return "^" + a.Node
	case a.Output == 0:
		return a.Node
	default:
		return fmt.Sprintf("%s:%d", a.Node, a.Output)
	}
}

// Key is the fully explicit `name:k` form, used to key feeds and fetches so
// that `x` and `x:0` collide.
func (a Address) Key() string {
	if a.Control {
		return "^" + a.Node
	}
	return fmt.Sprintf("%s:%d", a.Node, a.Output)
}

// Equal checks whether two addresses reference the same endpoint.
func (a Address) Equal(other Address) bool {
	return a == other
}
