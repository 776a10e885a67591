package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/lib/pq"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , owner_id
  , is_active
  , version
  , created_at
  , updated_at
`

// Workflows returns all workflows, newest first.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// WorkflowByID returns a workflow with its nodes and edges.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// SaveWorkflow upserts the workflow in one transaction. Nodes missing from the
// new definition are deleted, the rest are upserted by id, and edges are
// replaced.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = models.NewWorkflowID()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	workflow.Edges = graph.FilterDanglingEdges(workflow.Nodes, workflow.Edges)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO workflows (id, name, description, owner_id, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			owner_id = EXCLUDED.owner_id,
			is_active = EXCLUDED.is_active,
			version = workflows.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version, created_at
	`

	err = tx.QueryRowContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.OwnerID,
		workflow.IsActive,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	).Scan(&workflow.Version, &workflow.CreatedAt)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	if err = r.saveNodes(ctx, tx, workflow); err != nil {
		return err
	}

	if err = r.saveEdges(ctx, tx, workflow); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteWorkflow deletes a workflow. Nodes, edges, triggers, executions and
// node runs go with it.
func (r *WorkflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) saveNodes(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	ids := make([]string, 0, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		ids = append(ids, node.ID)
	}

	_, err := tx.ExecContext(ctx,
		`DELETE FROM workflow_nodes WHERE workflow_id = $1 AND NOT (id = ANY($2))`,
		workflow.ID, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to delete removed nodes: %w", err)
	}

	query := `
		INSERT INTO workflow_nodes (workflow_id, id, node_type, label, position_x, position_y, config, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workflow_id, id) DO UPDATE SET
			node_type = EXCLUDED.node_type,
			label = EXCLUDED.label,
			position_x = EXCLUDED.position_x,
			position_y = EXCLUDED.position_y,
			config = EXCLUDED.config,
			sort_order = EXCLUDED.sort_order
	`

	for i := range workflow.Nodes {
		node := &workflow.Nodes[i]
		node.WorkflowID = workflow.ID

		configJSON, err := marshalJSON(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node configuration: %w", err)
		}

		_, err = tx.ExecContext(ctx, query,
			workflow.ID,
			node.ID,
			node.Type,
			node.Label,
			node.PositionX,
			node.PositionY,
			configJSON,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) saveEdges(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing edges: %w", err)
	}

	query := `
		INSERT INTO workflow_edges (workflow_id, id, source_node_id, target_node_id, source_handle, target_handle, label, condition, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i := range workflow.Edges {
		edge := &workflow.Edges[i]
		edge.WorkflowID = workflow.ID

		_, err := tx.ExecContext(ctx, query,
			workflow.ID,
			edge.ID,
			edge.SourceNodeID,
			edge.TargetNodeID,
			edge.SourceHandle,
			edge.TargetHandle,
			edge.Label,
			edge.Condition,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := r.loadNodes(ctx, workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("loadNodes", workflow.ID, err)
	}

	edges, err := r.loadEdges(ctx, workflow.ID)
	if err != nil {
		return persistence.NewWorkflowError("loadEdges", workflow.ID, err)
	}

	workflow.Nodes = nodes
	workflow.Edges = edges

	return nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]models.WorkflowNode, error) {
	query := `
		SELECT id, node_type, label, position_x, position_y, config
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node       = models.WorkflowNode{WorkflowID: workflowID}
			configJSON []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Label, &node.PositionX, &node.PositionY, &configJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		if err := unmarshalJSON(configJSON, &node.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node configuration: %w", err)
		}

		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID string) ([]models.WorkflowEdge, error) {
	query := `
		SELECT id, source_node_id, target_node_id, source_handle, target_handle, label, condition
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	edges := make([]models.WorkflowEdge, 0)

	for rows.Next() {
		edge := models.WorkflowEdge{WorkflowID: workflowID}

		err := rows.Scan(
			&edge.ID,
			&edge.SourceNodeID,
			&edge.TargetNodeID,
			&edge.SourceHandle,
			&edge.TargetHandle,
			&edge.Label,
			&edge.Condition,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}

		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.OwnerID,
		&workflow.IsActive,
		&workflow.Version,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func marshalJSON(value map[string]any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(value)
}

func unmarshalJSON(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
