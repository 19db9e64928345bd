package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	return store, &now
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Session{Script: "system.tag.readBlocking(['[default]Tanks/Level1'])"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreate_AssignsUniqueIDs(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, Session{Script: "a"})
	require.NoError(t, err)
	second, err := store.Create(ctx, Session{Script: "b"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newClockedStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Session{Script: "old"})
	require.NoError(t, err)

	*now = now.Add(time.Minute)

	updated, err := store.Update(ctx, created.ID, func(s *Session) {
		s.Script = "new"
		s.ValidationResult = map[string]any{"valid": true}

		// Attempts to change identity fields are discarded
		s.ID = "hijacked"
		s.CreatedAt = time.Time{}
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "new", updated.Script)
	assert.Equal(t, map[string]any{"valid": true}, updated.ValidationResult)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
}

func TestUpdate_NotFound(t *testing.T) {
	store, _ := newClockedStore(t)

	_, err := store.Update(context.Background(), "missing", func(s *Session) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Session{Script: "a"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))

	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrNotFound)
}

func TestList_OrderedByCreation(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, Session{Script: "first"})
	require.NoError(t, err)

	*now = now.Add(time.Second)
	second, err := store.Create(ctx, Session{Script: "second"})
	require.NoError(t, err)

	*now = now.Add(time.Second)
	third, err := store.Create(ctx, Session{Script: "third"})
	require.NoError(t, err)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestList_Empty(t *testing.T) {
	store, _ := newClockedStore(t)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
