package costmodel

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML renders the graph as a deterministic text document.
func (g *CostGraph) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return "", fmt.Errorf("failed to encode cost graph: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode cost graph: %w", err)
	}
	return buf.String(), nil
}

// ParseYAML reads a graph written by YAML. Unknown fields are rejected.
func ParseYAML(data []byte) (*CostGraph, error) {
	var g CostGraph
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to parse cost graph: %w", err)
	}
	return &g, nil
}
