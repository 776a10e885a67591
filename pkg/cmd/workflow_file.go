package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/services"
	"gopkg.in/yaml.v3"
)

// WorkflowFile is the on-disk form of a workflow. JSON files parse as YAML.
type WorkflowFile struct {
	ID          string                `yaml:"id"`
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	OwnerID     string                `yaml:"owner_id"`
	Active      bool                  `yaml:"active"`
	Nodes       []models.WorkflowNode `yaml:"nodes"`
	Edges       []models.WorkflowEdge `yaml:"edges"`
}

// LoadWorkflowFile parses the workflow stored at path.
func LoadWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var file WorkflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	return &models.Workflow{
		ID:          file.ID,
		Name:        file.Name,
		Description: file.Description,
		OwnerID:     file.OwnerID,
		IsActive:    file.Active,
		Nodes:       file.Nodes,
		Edges:       file.Edges,
	}, nil
}

// ImportWorkflow stores workflow, replacing the stored one when its id already
// exists. Unknown ids get a new workflow with a generated id.
func ImportWorkflow(ctx context.Context, workflows *services.Workflow, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID != "" {
		_, err := workflows.FetchByID(ctx, workflow.ID)
		if err == nil {
			return workflows.Update(ctx, workflow.ID, workflow)
		}

		if !services.IsNotFoundError(err) {
			return nil, err
		}
	}

	return workflows.Create(ctx, workflow)
}
