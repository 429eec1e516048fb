package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]Post
	err    error
}

func newMemRepo() *memRepo {
	return &memRepo{posts: map[int64]Post{}}
}

func (r *memRepo) InsertPost(_ context.Context, paths []string, caption string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.nextID++
	r.posts[r.nextID] = Post{ID: r.nextID, PhotoPaths: paths, Caption: caption}
	return r.nextID, nil
}

func (r *memRepo) ListPosts(context.Context) ([]Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Post, 0, len(r.posts))
	for id := int64(1); id <= r.nextID; id++ {
		if p, ok := r.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) DeletePost(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.posts[id]
	delete(r.posts, id)
	return ok, nil
}

func (r *memRepo) GetCursor(context.Context, string) (int64, error) { return 0, nil }

func (r *memRepo) UpdateCursor(context.Context, string, int64) error { return nil }

// slowAcquirer fails refs listed in fail and completes earlier refs last, so
// completion order is the reverse of submission order.
type slowAcquirer struct {
	fail map[string]bool
}

func (a slowAcquirer) Acquire(_ context.Context, ref PhotoRef, _ time.Time) (string, error) {
	switch ref.FileID {
	case "p1":
		time.Sleep(30 * time.Millisecond)
	case "p2":
		time.Sleep(15 * time.Millisecond)
	}
	if a.fail[ref.FileID] {
		return "", &AcquisitionError{FileID: ref.FileID, Err: errors.New("fetch: status 404")}
	}
	return "s-" + ref.FileID, nil
}

func newService(repo *memRepo, acq PhotoAcquirer) *PostService {
	return NewPostService(repo, repo, acq, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func refs(ids ...string) []PhotoRef {
	out := make([]PhotoRef, len(ids))
	for i, id := range ids {
		out[i] = PhotoRef{FileID: id}
	}
	return out
}

func TestSubmitBatchKeepsSubmissionOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, slowAcquirer{})

	post, err := svc.SubmitBatch(context.Background(), refs("p1", "p2", "p3"), "caption")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-p1", "s-p2", "s-p3"}, post.PhotoPaths)
	assert.Equal(t, "caption", post.Caption)
	assert.Equal(t, int64(1), post.ID)
}

func TestSubmitBatchPartialFailure(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, slowAcquirer{fail: map[string]bool{"p2": true}})

	post, err := svc.SubmitBatch(context.Background(), refs("p1", "p2", "p3"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-p1", "s-p3"}, post.PhotoPaths)
}

func TestSubmitBatchAllFail(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo, slowAcquirer{fail: map[string]bool{"p1": true, "p2": true, "p3": true}})

	_, err := svc.SubmitBatch(context.Background(), refs("p1", "p2", "p3"), "x")
	require.ErrorIs(t, err, ErrEmptyBatch)
	assert.True(t, IsUserError(err))

	var emptyErr *EmptyBatchError
	require.ErrorAs(t, err, &emptyErr)
	assert.Len(t, emptyErr.Failures, 3)

	var acqErr *AcquisitionError
	assert.ErrorAs(t, err, &acqErr)

	posts, err := svc.ListPosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestAssembleRejectsEmptyBatch(t *testing.T) {
	svc := newService(newMemRepo(), slowAcquirer{})
	_, err := svc.Assemble(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestAssembleStoreFailure(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("disk I/O error")
	svc := newService(repo, slowAcquirer{})

	_, err := svc.Assemble(context.Background(), []string{"a"}, "x")
	var storeErr *StoreWriteError
	require.ErrorAs(t, err, &storeErr)
	assert.False(t, IsUserError(err))
}

func TestAssembleCopiesPaths(t *testing.T) {
	svc := newService(newMemRepo(), slowAcquirer{})
	paths := []string{"a", "b"}

	post, err := svc.Assemble(context.Background(), paths, "")
	require.NoError(t, err)
	paths[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, post.PhotoPaths)
}

func TestDeletePostTwice(t *testing.T) {
	ctx := context.Background()
	svc := newService(newMemRepo(), slowAcquirer{})

	assert.ErrorIs(t, svc.DeletePost(ctx, 1), ErrPostNotFound)

	post, err := svc.Assemble(ctx, []string{"a"}, "")
	require.NoError(t, err)

	assert.NoError(t, svc.DeletePost(ctx, post.ID))
	assert.ErrorIs(t, svc.DeletePost(ctx, post.ID), ErrPostNotFound)
}
