// Package file provides a persistence implementation that keeps every record in
// memory and mirrors it to a JSON file after each write. It suits single process
// setups that need to survive restarts without a database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/memory"
)

const snapshotFile = "flowrun.json"

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	*memory.Persistence

	root string
	mu   sync.Mutex
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence opens the store rooted at root, creating the directory when
// needed. A "file://" prefix is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")

	if err := os.MkdirAll(cleanRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cleanRoot, err)
	}

	fp := &Persistence{Persistence: memory.NewPersistence(), root: cleanRoot}

	data, err := os.ReadFile(fp.path())
	if errors.Is(err, os.ErrNotExist) {
		return fp, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fp.path(), err)
	}

	var snapshot memory.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fp.path(), err)
	}

	fp.Restore(snapshot)

	return fp, nil
}

func (fp *Persistence) path() string {
	return filepath.Join(fp.root, snapshotFile)
}

// flush writes the current records to a temporary file and renames it over
// the snapshot.
func (fp *Persistence) flush() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	data, err := json.MarshalIndent(fp.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(fp.root, snapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return os.Rename(tmp.Name(), fp.path())
}

// HealthCheck checks the data directory still exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}

	return nil
}

// Close writes a final snapshot.
func (fp *Persistence) Close(_ context.Context) error {
	return fp.flush()
}

func (fp *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if err := fp.Persistence.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	if err := fp.Persistence.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	if err := fp.Persistence.SaveTrigger(ctx, trigger); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) DeleteTrigger(ctx context.Context, id string) error {
	if err := fp.Persistence.DeleteTrigger(ctx, id); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := fp.Persistence.CreateExecution(ctx, execution); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := fp.Persistence.UpdateExecution(ctx, execution); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) FindOrCreateNodeRun(
	ctx context.Context,
	run *models.WorkflowNodeRun,
) (*models.WorkflowNodeRun, bool, error) {
	stored, created, err := fp.Persistence.FindOrCreateNodeRun(ctx, run)
	if err != nil || !created {
		return stored, created, err
	}

	return stored, created, fp.flush()
}

func (fp *Persistence) UpdateNodeRun(ctx context.Context, run *models.WorkflowNodeRun, from models.NodeRunStatus) error {
	if err := fp.Persistence.UpdateNodeRun(ctx, run, from); err != nil {
		return err
	}

	return fp.flush()
}

func (fp *Persistence) CancelActiveNodeRuns(
	ctx context.Context,
	executionID string,
	at time.Time,
) ([]*models.WorkflowNodeRun, error) {
	canceled, err := fp.Persistence.CancelActiveNodeRuns(ctx, executionID, at)
	if err != nil || len(canceled) == 0 {
		return canceled, err
	}

	return canceled, fp.flush()
}
