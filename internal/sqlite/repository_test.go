package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestInsertAndListPosts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first, err := repo.InsertPost(ctx, []string{"1_a.jpg", "1_b.jpg"}, "hello")
	require.NoError(t, err)
	second, err := repo.InsertPost(ctx, []string{"2_c.jpg"}, "")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	posts, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, first, posts[0].ID)
	assert.Equal(t, []string{"1_a.jpg", "1_b.jpg"}, posts[0].PhotoPaths)
	assert.Equal(t, "hello", posts[0].Caption)
	assert.False(t, posts[0].CreatedAt.IsZero())
	assert.Equal(t, []string{"2_c.jpg"}, posts[1].PhotoPaths)
	assert.Equal(t, "", posts[1].Caption)
}

func TestListPostsEmpty(t *testing.T) {
	posts, err := newTestRepository(t).ListPosts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestDeletePostReportsExistence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	found, err := repo.DeletePost(ctx, 99)
	require.NoError(t, err)
	assert.False(t, found)

	id, err := repo.InsertPost(ctx, []string{"a.jpg"}, "x")
	require.NoError(t, err)

	found, err = repo.DeletePost(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.DeletePost(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	id, err := repo.InsertPost(ctx, []string{"a.jpg"}, "")
	require.NoError(t, err)
	_, err = repo.DeletePost(ctx, id)
	require.NoError(t, err)

	next, err := repo.InsertPost(ctx, []string{"b.jpg"}, "")
	require.NoError(t, err)
	assert.Greater(t, next, id)
}

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	cursor, err := repo.GetCursor(ctx, "telegram")
	require.NoError(t, err)
	assert.Zero(t, cursor)

	require.NoError(t, repo.UpdateCursor(ctx, "telegram", 41))
	require.NoError(t, repo.UpdateCursor(ctx, "telegram", 42))

	cursor, err = repo.GetCursor(ctx, "telegram")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
}
