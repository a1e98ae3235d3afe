package coststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vk/burstcluster/internal/costmodel"
	"github.com/vk/burstcluster/internal/status"
	"gopkg.in/yaml.v3"
)

// SaveRun stores g under runID. Saving the same run ID twice fails with
// AlreadyExists.
func (s *Store) SaveRun(ctx context.Context, label, runID string, g *costmodel.CostGraph) (err error) {
	if runID == "" {
		return status.Errorf(status.InvalidArgument, "run ID is empty")
	}
	if g == nil {
		return status.Errorf(status.InvalidArgument, "cost graph for run %s is nil", runID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, label, created_at) VALUES (?, ?, ?)`,
		runID, label, time.Now().UnixMicro(),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return status.Wrap(status.AlreadyExists, err, "run %s is already stored", runID)
		}
		return fmt.Errorf("save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cost_nodes
		(run_id, position, name, device, kind, outputs, compute_cost,
		 host_persistent_memory, device_persistent_memory, executions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer stmt.Close()

	for i, n := range g.Nodes {
		outputs, err := yaml.Marshal(n.Outputs)
		if err != nil {
			return fmt.Errorf("save run: outputs of %q: %w", n.Name, err)
		}
		_, err = stmt.ExecContext(ctx,
			runID, i, n.Name, n.Device, n.Kind, string(outputs), n.ComputeCost,
			n.HostPersistentMemory, n.DevicePersistentMemory, n.Executions,
		)
		if err != nil {
			return fmt.Errorf("save run: node %q: %w", n.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// DeleteRun removes a run and its nodes. Deleting an unknown run is not an
// error.
func (s *Store) DeleteRun(ctx context.Context, runID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM cost_nodes WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
