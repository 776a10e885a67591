package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/persistence/persistencetest"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		store, err := file.NewPersistence(t.TempDir())
		require.NoError(t, err)

		return store
	})
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := "file://" + t.TempDir()

	store, err := file.NewPersistence(root)
	require.NoError(t, err)

	workflow := testutil.CreateTestWorkflow(nil, nil)
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	require.NoError(t, store.Close(ctx))

	reopened, err := file.NewPersistence(root)
	require.NoError(t, err)

	loaded, err := reopened.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
}

func TestPersistence_CorruptSnapshot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "flowrun.json"), []byte("{"), 0o600))

	_, err := file.NewPersistence(root)
	require.Error(t, err)
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "data")

	store, err := file.NewPersistence(root)
	require.NoError(t, err)
	require.NoError(t, store.HealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(root))
	require.Error(t, store.HealthCheck(context.Background()))
}
