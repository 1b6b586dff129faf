package mission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return NewManager(store, bus.NewMemoryEventBus(log), log)
}

func TestManagerCreate(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())

	mission, err := m.Create(context.Background(), "deploy", []string{"build", "test", "ship"})
	require.NoError(t, err)
	assert.NotEmpty(t, mission.ID)
	assert.Equal(t, "deploy", mission.Project)
	assert.Len(t, mission.Steps, 3)

	cur := m.Current()
	require.NotNil(t, cur)
	assert.Equal(t, mission.ID, cur.ID)
}

func TestManagerAppendLog(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	// No mission yet: logging is a no-op, not an error.
	m.AppendLog(ctx, "orphan line")
	assert.Equal(t, "none", m.LastStatus())

	_, err := m.Create(ctx, "deploy", []string{"build"})
	require.NoError(t, err)

	m.AppendLog(ctx, "INFO: building")
	assert.Equal(t, "INFO: building", m.LastStatus())
	assert.Equal(t, []string{"INFO: building"}, m.Current().Logs)
}

func TestManagerCompleteStep(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())
	ctx := context.Background()

	_, err := m.Create(ctx, "deploy", []string{"build", "test"})
	require.NoError(t, err)

	summary, ok := m.CompleteStep(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, "Step 2/2 complete: test", summary)

	// Completing the same step twice does not duplicate it.
	_, ok = m.CompleteStep(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, []int{2}, m.Current().CompletedSteps)

	// Out of range indices are ignored.
	_, ok = m.CompleteStep(ctx, 0)
	assert.False(t, ok)
	_, ok = m.CompleteStep(ctx, 3)
	assert.False(t, ok)
}

func TestManagerCurrentIsACopy(t *testing.T) {
	m := newTestManager(t, NewMemoryStore())
	_, err := m.Create(context.Background(), "deploy", []string{"build"})
	require.NoError(t, err)

	cur := m.Current()
	cur.Steps[0] = "mutated"
	assert.Equal(t, "build", m.Current().Steps[0])
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := t.TempDir() + "/missions.db"
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	m := newTestManager(t, store)
	ctx := context.Background()

	mission, err := m.Create(ctx, "deploy", []string{"build", "test"})
	require.NoError(t, err)
	m.AppendLog(ctx, "INFO: building")
	_, ok := m.CompleteStep(ctx, 1)
	require.True(t, ok)

	loaded, err := store.GetMission(ctx, mission.ID)
	require.NoError(t, err)
	assert.Equal(t, "deploy", loaded.Project)
	assert.Equal(t, []string{"build", "test"}, loaded.Steps)
	assert.Equal(t, []string{"INFO: building"}, loaded.Logs)
	assert.Equal(t, []int{1}, loaded.CompletedSteps)
	assert.Equal(t, "INFO: building", loaded.LastStatus)

	missions, err := store.ListMissions(ctx)
	require.NoError(t, err)
	require.Len(t, missions, 1)

	_, err = store.GetMission(ctx, "no-such-mission")
	assert.Error(t, err)
}
