package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thetakeaway/takeaway/src/migration/types"
)

func v(hour int) types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC))
}

func TestPlan(t *testing.T) {
	all := []types.MigrationVersion{v(1), v(2), v(3)}

	t.Run("fresh database rolls forward to latest", func(t *testing.T) {
		steps, err := plan(all, types.MigrationVersion{}, types.MigrationVersion{})
		require.Nil(t, err)
		require.Len(t, steps, 3)
		for i, step := range steps {
			assert.True(t, step.up)
			assert.True(t, step.version.Equal(all[i]))
		}
	})
	t.Run("roll back", func(t *testing.T) {
		steps, err := plan(all, v(3), v(1))
		require.Nil(t, err)
		require.Len(t, steps, 2)
		assert.False(t, steps[0].up)
		assert.True(t, steps[0].version.Equal(v(3)))
		assert.True(t, steps[0].resultVersion.Equal(v(2)))
		assert.True(t, steps[1].resultVersion.Equal(v(1)))
	})
	t.Run("nothing to do", func(t *testing.T) {
		steps, err := plan(all, v(3), v(3))
		require.Nil(t, err)
		assert.Len(t, steps, 0)
	})
	t.Run("unknown target", func(t *testing.T) {
		_, err := plan(all, v(1), v(9))
		assert.ErrorIs(t, err, ErrUnknownMigration)
	})
}

func TestRegisteredMigrationsAreOrdered(t *testing.T) {
	versions := getSortedMigrationVersions()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.True(t, versions[i-1].Before(versions[i]))
	}
}

func TestMakeMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := MakeMigration(dir, "AddIdeaTags", `Add "tags" to ideas`, now)
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "2026-03-04T050607Z_AddIdeaTags.go"), path)

	contents, err := os.ReadFile(path)
	require.Nil(t, err)
	src := string(contents)
	assert.Contains(t, src, "type AddIdeaTags struct{}")
	assert.Contains(t, src, "time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)")
	assert.Contains(t, src, `return "Add \"tags\" to ideas"`)
	assert.NotContains(t, src, "%NAME%")
}
