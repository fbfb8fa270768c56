package diary_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fooddiary/pkg/diary"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

func TestNewAttachDetach(t *testing.T) {
	d := diary.New()
	require.NoError(t, d.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))

	repo, err := d.Entries()
	require.NoError(t, err)
	saved, err := repo.Save(types.Entry{
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Meal:      types.Meal{MealType: types.MealLunch},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	require.NoError(t, d.Detach())
}
