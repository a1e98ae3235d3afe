package coststore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/status"
	"gopkg.in/yaml.v3"
)

// Run describes one stored run.
type Run struct {
	RunID     string
	Label     string
	CreatedAt time.Time
}

// LoadRun reads back the cost graph stored under runID, nodes in their
// original order.
func (s *Store) LoadRun(ctx context.Context, runID string) (*costmodel.CostGraph, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.Errorf(status.NotFound, "run %s is not stored", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, device, kind, outputs, compute_cost,
		       host_persistent_memory, device_persistent_memory, executions
		FROM cost_nodes
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	defer rows.Close()

	g := &costmodel.CostGraph{}
	for rows.Next() {
		n := &costmodel.Node{}
		var outputs string
		if err := rows.Scan(&n.Name, &n.Device, &n.Kind, &outputs, &n.ComputeCost,
			&n.HostPersistentMemory, &n.DevicePersistentMemory, &n.Executions); err != nil {
			return nil, fmt.Errorf("load run: scan node: %w", err)
		}
		if err := yaml.Unmarshal([]byte(outputs), &n.Outputs); err != nil {
			return nil, fmt.Errorf("load run: outputs of %q: %w", n.Name, err)
		}
		if len(n.Outputs) == 0 {
			n.Outputs = nil
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load run: iterate nodes: %w", err)
	}
	return g, nil
}

// ListRuns returns the runs stored under label, oldest first. An empty
// label lists every run.
func (s *Store) ListRuns(ctx context.Context, label string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, label, created_at
		FROM runs
		WHERE ? = '' OR label = ?
		ORDER BY seq ASC
	`, label, label)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.RunID, &r.Label, &created); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.CreatedAt = time.UnixMicro(created)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
