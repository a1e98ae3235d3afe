// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

// refRegex matches `name`, `name:k` and `^name`.
var refRegex = regexp.MustCompile(`^(\^)?([A-Za-z0-9_.][A-Za-z0-9_.\-/]*)(?::(\d+))?$`)

// isValidName checks for undesirable but technically valid names.
func isValidName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return name[len(name)-1] != '/'
}

// Parse creates a new Address by parsing its string representation.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Address{}, fmt.Errorf("reference cannot be empty")
	}

	matches := refRegex.FindStringSubmatch(raw)
	if matches == nil {
		return Address{}, fmt.Errorf("invalid reference format: %q", raw)
	}

	name := matches[2]
	if !isValidName(name) {
		return Address{}, fmt.Errorf("invalid operation name: %q", name)
	}

	addr := Address{Node: name, Control: matches[1] == "^"}
	if matches[3] != "" {
		if addr.Control {
			return Address{}, fmt.Errorf("control reference %q cannot name an output slot", raw)
		}
		index, err := strconv.Atoi(matches[3])
		if err != nil {
			// Unreachable due to regex `\d+`
			return Address{}, fmt.Errorf("internal error parsing output slot: %w", err)
		}
		addr.Output = index
	}

	return addr, nil
}

// ValidName reports whether name can be used as an operation name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	m := refRegex.FindStringSubmatch(name)
	return m != nil && m[1] == "" && m[3] == "" && isValidName(name)
}
