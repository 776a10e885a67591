package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository handles workflow execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, workflow_id, trigger_type, status, started_at, finished_at, state_in, state_out, error, version`

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		execution.ID = models.NewExecutionID()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	stateIn, err := marshalJSON(execution.StateIn)
	if err != nil {
		return fmt.Errorf("failed to marshal state in: %w", err)
	}

	stateOut, err := marshalJSON(execution.StateOut)
	if err != nil {
		return fmt.Errorf("failed to marshal state out: %w", err)
	}

	execution.Version = 1

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.TriggerType,
		execution.Status,
		execution.StartedAt,
		execution.FinishedAt,
		stateIn,
		stateOut,
		execution.Error,
		execution.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return persistence.NewWorkflowError("CreateExecution", execution.WorkflowID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewExecutionError("CreateExecution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	stateOut, err := marshalJSON(execution.StateOut)
	if err != nil {
		return fmt.Errorf("failed to marshal state out: %w", err)
	}

	query := `
		UPDATE workflow_executions
		SET status = $1, finished_at = $2, state_out = $3, error = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.Status,
		execution.FinishedAt,
		stateOut,
		execution.Error,
		execution.ID,
		execution.Version,
	)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)`, execution.ID).Scan(&exists)
		if err != nil {
			return persistence.NewExecutionError("UpdateExecution", execution.ID, err)
		}

		if !exists {
			return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrVersionConflict)
	}

	execution.Version++

	return nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution          models.WorkflowExecution
		finishedAt         sql.NullTime
		stateIn, stateOut []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TriggerType,
		&execution.Status,
		&execution.StartedAt,
		&finishedAt,
		&stateIn,
		&stateOut,
		&execution.Error,
		&execution.Version,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		execution.FinishedAt = &finishedAt.Time
	}

	if err := unmarshalJSON(stateIn, &execution.StateIn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state in: %w", err)
	}

	if err := unmarshalJSON(stateOut, &execution.StateOut); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state out: %w", err)
	}

	return &execution, nil
}
