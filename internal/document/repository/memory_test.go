package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, title, content, author string) document.Document {
	t.Helper()
	d, err := document.NewDocument(document.CreateCommand{Title: title, Content: content}, author, time.Now())
	require.NoError(t, err)
	return d
}

func TestMemoryRepoCRUD(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, err := r.Insert(ctx, mustDoc(t, "t", "hello", "alice"))
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.EqualValues(t, 1, d.Revision)

	got, err := r.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Content)

	got = document.CreateVersion(got, "new", "alice", "", time.Now())
	saved, err := r.Save(ctx, got)
	require.NoError(t, err)
	require.EqualValues(t, 2, saved.Revision)

	got2, err := r.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got2.Content)
	require.Len(t, got2.Versions, 1)

	require.NoError(t, r.Delete(ctx, d.ID))
	_, err = r.Load(ctx, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
	require.ErrorIs(t, r.Delete(ctx, d.ID), document.ErrNotFound)
}

func TestMemoryRepoSaveRejectsStaleRevision(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, err := r.Insert(ctx, mustDoc(t, "t", "v1", "alice"))
	require.NoError(t, err)

	first, _ := r.Load(ctx, d.ID)
	second, _ := r.Load(ctx, d.ID)

	_, err = r.Save(ctx, document.CreateVersion(first, "from-first", "alice", "", time.Now()))
	require.NoError(t, err)
	_, err = r.Save(ctx, document.CreateVersion(second, "from-second", "alice", "", time.Now()))
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	cur, _ := r.Load(ctx, d.ID)
	require.Equal(t, "from-first", cur.Content)
	require.Equal(t, len(cur.Versions)+1, cur.CurrentVersion)
}

func TestMemoryRepoIsolatesStoredState(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, _ := r.Insert(ctx, mustDoc(t, "t", "v1", "alice"))
	loaded, _ := r.Load(ctx, d.ID)
	loaded.Collaborators = append(loaded.Collaborators, document.Collaborator{User: "bob"})
	again, _ := r.Load(ctx, d.ID)
	require.Empty(t, again.Collaborators)
}

func TestMemoryRepoIncrementAccess(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d, _ := r.Insert(ctx, mustDoc(t, "t", "v1", "alice"))
	require.NoError(t, r.IncrementAccess(ctx, d.ID))
	require.NoError(t, r.IncrementAccess(ctx, d.ID))

	// a save from an older snapshot keeps the counter
	loaded, _ := r.Load(ctx, d.ID)
	loaded.Title = "renamed"
	_, err := r.Save(ctx, loaded)
	require.NoError(t, err)
	cur, _ := r.Load(ctx, d.ID)
	require.EqualValues(t, 2, cur.AccessCount)
	require.ErrorIs(t, r.IncrementAccess(ctx, "missing"), document.ErrNotFound)
}

func TestMemoryRepoListAccessibleTo(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		d := mustDoc(t, fmt.Sprintf("alice-%d", i), "x", "alice")
		d.LastModified = base.Add(time.Duration(i) * time.Minute)
		_, err := r.Insert(ctx, d)
		require.NoError(t, err)
	}
	shared := mustDoc(t, "shared", "x", "carol")
	shared.Collaborators = []document.Collaborator{{User: "alice", Permission: document.PermissionView}}
	shared.LastModified = base.Add(-time.Hour)
	_, _ = r.Insert(ctx, shared)
	public := mustDoc(t, "public", "x", "carol")
	public.IsPublic = true
	public.LastModified = base.Add(-2 * time.Hour)
	_, _ = r.Insert(ctx, public)
	private := mustDoc(t, "private", "x", "carol")
	_, _ = r.Insert(ctx, private)

	items, total, err := r.ListAccessibleTo(ctx, "alice", 1, 3)
	require.NoError(t, err)
	require.EqualValues(t, 7, total)
	require.Len(t, items, 3)
	require.Equal(t, "alice-4", items[0].Title)

	items, _, err = r.ListAccessibleTo(ctx, "alice", 3, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "public", items[0].Title)

	items, total, err = r.ListAccessibleTo(ctx, "alice", 10, 3)
	require.NoError(t, err)
	require.Empty(t, items)
	require.EqualValues(t, 7, total)
}

func TestMemoryRepoFullTextSearch(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	_, _ = r.Insert(ctx, mustDoc(t, "Roadmap", "quarterly goals", "alice"))
	_, _ = r.Insert(ctx, mustDoc(t, "Secret", "quarterly numbers", "carol"))
	_, _ = r.Insert(ctx, mustDoc(t, "Groceries", "milk", "alice"))

	hits, err := r.FullTextSearch(ctx, "QUARTERLY", "alice", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Roadmap", hits[0].Title)

	hits, err = r.FullTextSearch(ctx, "  ", "alice", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
