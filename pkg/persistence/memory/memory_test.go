package memory_test

import (
	"testing"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/persistence/persistencetest"
)

func TestPersistence(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(_ *testing.T) persistence.Persistence {
		return memory.NewPersistence()
	})
}
