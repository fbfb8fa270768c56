package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fooddiary/internal/enginetest"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

func openEngine(t *testing.T, dir string) types.Engine {
	t.Helper()
	e, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine(t *testing.T) {
	enginetest.Run(t, openEngine)
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	e, err := Open(dir)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, filepath.Join(dir, DBFileName), e.Path())
	assert.FileExists(t, e.Path())
}
