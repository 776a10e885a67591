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

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

const triggerColumns = `t.id, t.workflow_id, t.trigger_type, t.cron_expr, t.timezone, t.is_active, t.created_at, t.updated_at`

func (r *TriggerRepository) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers t WHERE t.id = $1`

	trigger, err := scanTrigger(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTriggerNotFound
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	return trigger, nil
}

func (r *TriggerRepository) TriggersByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers t WHERE t.workflow_id = $1 ORDER BY t.id`

	return r.queryTriggers(ctx, query, workflowID)
}

func (r *TriggerRepository) ActiveCronTriggers(ctx context.Context) ([]*models.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers t
		JOIN workflows w ON w.id = t.workflow_id
		WHERE t.trigger_type = 'cron' AND t.is_active AND w.is_active
		ORDER BY t.id
	`

	return r.queryTriggers(ctx, query)
}

func (r *TriggerRepository) queryTriggers(ctx context.Context, query string, args ...any) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}

func (r *TriggerRepository) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	now := time.Now().UTC()

	if trigger.ID == "" {
		trigger.ID = models.NewTriggerID()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	query := `
		INSERT INTO triggers (id, workflow_id, trigger_type, cron_expr, timezone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			trigger_type = EXCLUDED.trigger_type,
			cron_expr = EXCLUDED.cron_expr,
			timezone = EXCLUDED.timezone,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.Type,
		trigger.CronExpr,
		trigger.Location(),
		trigger.IsActive,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	).Scan(&trigger.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return persistence.NewWorkflowError("SaveTrigger", trigger.WorkflowID, persistence.ErrWorkflowNotFound)
		}

		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) DeleteTrigger(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

func scanTrigger(row scanner) (*models.Trigger, error) {
	var trigger models.Trigger

	err := row.Scan(
		&trigger.ID,
		&trigger.WorkflowID,
		&trigger.Type,
		&trigger.CronExpr,
		&trigger.Timezone,
		&trigger.IsActive,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &trigger, nil
}
