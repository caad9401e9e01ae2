package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolf75222/alldone/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	tasks := []model.Task{
		{ID: "a", WorkspaceID: "w1", Title: "Design", Status: model.StatusDone, StartDate: datePtr(2024, 1, 1), DueDate: datePtr(2024, 1, 3)},
		{ID: "b", WorkspaceID: "w1", ProjectID: "p1", Title: "Build", Status: model.StatusTodo, StartDate: datePtr(2024, 1, 3), DueDate: datePtr(2024, 1, 5)},
		{ID: "c", WorkspaceID: "w2", Title: "Elsewhere"},
	}
	for _, task := range tasks {
		_, err := s.AddTask(ctx, task)
		require.NoError(t, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestStore_LoadWorkspace(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	rel, err := s.AddRelation(ctx, "a", "b", model.RelationBlocks, "user-1")
	require.NoError(t, err)
	_, err = s.AddRelation(ctx, "b", "c", model.RelationRelates, "")
	require.NoError(t, err)

	snap, err := s.Load(ctx, "w1")
	require.NoError(t, err)

	require.Len(t, snap.Tasks, 2)
	a, ok := snap.Task("a")
	require.True(t, ok)
	assert.Equal(t, model.StatusDone, a.Status)
	require.True(t, a.HasDates())
	assert.Equal(t, 2, a.Duration())

	b, _ := snap.Task("b")
	assert.Equal(t, "p1", b.ProjectID)

	// The cross-workspace relation touches b so it is included.
	require.Len(t, snap.Relations, 2)
	assert.Equal(t, rel.ID, snap.Relations[0].ID)
	assert.Equal(t, model.RelationBlocks, snap.Relations[0].Type)
	assert.Equal(t, "user-1", snap.Relations[0].CreatedBy)

	all, err := s.Load(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all.Tasks, 3)
	c, _ := all.Task("c")
	assert.False(t, c.HasDates())
	assert.Equal(t, model.StatusTodo, c.Status)
}

func TestStore_AddRelationRules(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	_, err := s.AddRelation(ctx, "a", "a", model.RelationBlocks, "")
	assert.ErrorIs(t, err, ErrSelfRelation)
	assert.True(t, IsConflict(err))

	_, err = s.AddRelation(ctx, "a", "ghost", model.RelationBlocks, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsConflict(err))

	_, err = s.AddRelation(ctx, "a", "b", model.RelationDepends, "")
	require.NoError(t, err)

	_, err = s.AddRelation(ctx, "a", "b", model.RelationBlocks, "")
	assert.ErrorIs(t, err, ErrDuplicateRelation)

	_, err = s.AddRelation(ctx, "b", "a", model.RelationRelates, "")
	assert.ErrorIs(t, err, ErrDuplicateRelation, "reverse direction counts as already related")
}

func TestStore_RemoveRelation(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	rel, err := s.AddRelation(ctx, "a", "b", model.RelationBlocks, "")
	require.NoError(t, err)

	require.NoError(t, s.RemoveRelation(ctx, rel.ID))
	assert.ErrorIs(t, s.RemoveRelation(ctx, rel.ID), ErrNotFound)

	snap, err := s.Load(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, snap.Relations)
}

func TestStore_UpdateTaskStatus(t *testing.T) {
	s := setupStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpdateTaskStatus(ctx, "b", model.StatusInProgress))
	assert.ErrorIs(t, s.UpdateTaskStatus(ctx, "ghost", model.StatusDone), ErrNotFound)

	snap, err := s.Load(ctx, "w1")
	require.NoError(t, err)
	b, _ := snap.Task("b")
	assert.Equal(t, model.StatusInProgress, b.Status)
}

func TestStore_AddTaskGeneratesID(t *testing.T) {
	s := setupStore(t)
	task, err := s.AddTask(context.Background(), model.Task{WorkspaceID: "w1", Title: "Fresh"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.StatusTodo, task.Status)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}
