package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// NodeRunRepository handles node run database operations.
type NodeRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeRunRepository creates a new node run repository.
func NewNodeRunRepository(db *sql.DB, logger *slog.Logger) *NodeRunRepository {
	return &NodeRunRepository{db: db, logger: logger}
}

const nodeRunColumns = `id, execution_id, workflow_id, node_id, status, started_at, finished_at, input, output, error, created_at`

// FindOrCreateNodeRun relies on the (execution_id, node_id) unique index so
// concurrent callers converge on one row.
func (r *NodeRunRepository) FindOrCreateNodeRun(ctx context.Context, run *models.WorkflowNodeRun) (*models.WorkflowNodeRun, bool, error) {
	if run.ID == "" {
		run.ID = models.NewNodeRunID()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	input, err := nullableJSON(run.Input)
	if err != nil {
		return nil, false, err
	}

	output, err := nullableJSON(run.Output)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO workflow_node_runs (` + nodeRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (execution_id, node_id) DO NOTHING
		RETURNING ` + nodeRunColumns

	created, err := scanNodeRun(r.db.QueryRowContext(ctx, query,
		run.ID,
		run.ExecutionID,
		run.WorkflowID,
		run.NodeID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		input,
		output,
		run.Error,
		run.CreatedAt,
	))

	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := r.NodeRunByNode(ctx, run.ExecutionID, run.NodeID)

		return existing, false, err
	default:
		return nil, false, persistence.NewNodeRunError("FindOrCreateNodeRun", run.ExecutionID, run.NodeID, err)
	}
}

func (r *NodeRunRepository) NodeRunByNode(ctx context.Context, executionID, nodeID string) (*models.WorkflowNodeRun, error) {
	query := `SELECT ` + nodeRunColumns + ` FROM workflow_node_runs WHERE execution_id = $1 AND node_id = $2`

	run, err := scanNodeRun(r.db.QueryRowContext(ctx, query, executionID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNodeRunError("NodeRunByNode", executionID, nodeID, persistence.ErrNodeRunNotFound)
		}

		return nil, persistence.NewNodeRunError("NodeRunByNode", executionID, nodeID, err)
	}

	return run, nil
}

func (r *NodeRunRepository) NodeRunsByExecution(ctx context.Context, executionID string) ([]*models.WorkflowNodeRun, error) {
	query := `SELECT ` + nodeRunColumns + ` FROM workflow_node_runs WHERE execution_id = $1 ORDER BY created_at, id`

	return r.queryNodeRuns(ctx, query, executionID)
}

func (r *NodeRunRepository) UpdateNodeRun(ctx context.Context, run *models.WorkflowNodeRun, from models.NodeRunStatus) error {
	input, err := nullableJSON(run.Input)
	if err != nil {
		return err
	}

	output, err := nullableJSON(run.Output)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_node_runs
		SET status = $1, started_at = $2, finished_at = $3, input = $4, output = $5, error = $6
		WHERE id = $7 AND status = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		input,
		output,
		run.Error,
		run.ID,
		from,
	)
	if err != nil {
		return persistence.NewNodeRunError("UpdateNodeRun", run.ExecutionID, run.NodeID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewNodeRunError("UpdateNodeRun", run.ExecutionID, run.NodeID, persistence.ErrStaleNodeRun)
	}

	return nil
}

func (r *NodeRunRepository) CountActiveNodeRuns(ctx context.Context, executionID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_node_runs WHERE execution_id = $1 AND status IN ('PENDING', 'RUNNING')`,
		executionID,
	).Scan(&count)
	if err != nil {
		return 0, persistence.NewExecutionError("CountActiveNodeRuns", executionID, err)
	}

	return count, nil
}

func (r *NodeRunRepository) CancelActiveNodeRuns(ctx context.Context, executionID string, at time.Time) ([]*models.WorkflowNodeRun, error) {
	query := `
		UPDATE workflow_node_runs
		SET status = 'CANCELED', finished_at = $2
		WHERE execution_id = $1 AND status IN ('PENDING', 'RUNNING')
		RETURNING ` + nodeRunColumns

	return r.queryNodeRuns(ctx, query, executionID, at)
}

func (r *NodeRunRepository) queryNodeRuns(ctx context.Context, query string, args ...any) ([]*models.WorkflowNodeRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query node runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowNodeRun, 0)

	for rows.Next() {
		run, err := scanNodeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node run: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanNodeRun(row scanner) (*models.WorkflowNodeRun, error) {
	var (
		run                   models.WorkflowNodeRun
		startedAt, finishedAt sql.NullTime
		input, output         []byte
	)

	err := row.Scan(
		&run.ID,
		&run.ExecutionID,
		&run.WorkflowID,
		&run.NodeID,
		&run.Status,
		&startedAt,
		&finishedAt,
		&input,
		&output,
		&run.Error,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	if err := unmarshalJSON(input, &run.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}

	if err := unmarshalJSON(output, &run.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}

	return &run, nil
}

func nullableJSON(value map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}

	return data, nil
}
