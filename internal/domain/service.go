package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultBatchConcurrency bounds fan-out for a single batch submission.
const defaultBatchConcurrency = 4

// PostService is the core domain service. It assembles acquired photos into
// posts, accepts batch submissions, and serves listing and deletion.
type PostService struct {
	repo     PostRepository
	cursors  CursorRepository
	acquirer PhotoAcquirer
	logger   *slog.Logger

	batchConcurrency int
	now              func() time.Time
}

// NewPostService creates a PostService.
func NewPostService(repo PostRepository, cursors CursorRepository, acquirer PhotoAcquirer, logger *slog.Logger) *PostService {
	return &PostService{
		repo:             repo,
		cursors:          cursors,
		acquirer:         acquirer,
		logger:           logger,
		batchConcurrency: defaultBatchConcurrency,
		now:              time.Now,
	}
}

// SetBatchConcurrency changes how many photos of one batch are fetched at
// once. Values below 1 are ignored.
func (s *PostService) SetBatchConcurrency(n int) {
	if n >= 1 {
		s.batchConcurrency = n
	}
}

// Assemble persists one post from already acquired photos. photoPaths must be
// non-empty; caption may be empty.
func (s *PostService) Assemble(ctx context.Context, photoPaths []string, caption string) (*Post, error) {
	if len(photoPaths) == 0 {
		return nil, ErrEmptyBatch
	}

	paths := make([]string, len(photoPaths))
	copy(paths, photoPaths)

	id, err := s.repo.InsertPost(ctx, paths, caption)
	if err != nil {
		return nil, &StoreWriteError{Err: err}
	}

	post := &Post{
		ID:         id,
		PhotoPaths: paths,
		Caption:    caption,
		CreatedAt:  s.now().UTC(),
	}
	s.logger.Info("post saved", "post_id", id, "photos", len(paths))
	return post, nil
}

// SubmitBatch acquires every ref concurrently and assembles the successes,
// in submission order, into one post. If no photo could be acquired it
// returns an *EmptyBatchError and creates nothing.
func (s *PostService) SubmitBatch(ctx context.Context, refs []PhotoRef, caption string) (*Post, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyBatch
	}

	arrival := s.now()
	paths := make([]string, len(refs))
	failures := make([]error, len(refs))

	// Per-photo failures are recorded, never returned, so one bad ref
	// cannot cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			path, err := s.acquirer.Acquire(ctx, ref, arrival)
			if err != nil {
				failures[i] = err
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	acquired := make([]string, 0, len(refs))
	var failed []error
	for i := range refs {
		if failures[i] != nil {
			s.logger.Warn("photo acquisition failed", "file_id", refs[i].FileID, "error", failures[i])
			failed = append(failed, failures[i])
			continue
		}
		acquired = append(acquired, paths[i])
	}

	if len(acquired) == 0 {
		return nil, &EmptyBatchError{Failures: failed}
	}

	return s.Assemble(ctx, acquired, caption)
}

// ListPosts returns every stored post.
func (s *PostService) ListPosts(ctx context.Context) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// DeletePost removes a post by ID, returning ErrPostNotFound if no such post
// exists.
func (s *PostService) DeletePost(ctx context.Context, id int64) error {
	found, err := s.repo.DeletePost(ctx, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	if !found {
		return ErrPostNotFound
	}
	s.logger.Info("post deleted", "post_id", id)
	return nil
}

// GetCursor retrieves the last-processed update ID for the given source.
func (s *PostService) GetCursor(ctx context.Context, source string) (int64, error) {
	return s.cursors.GetCursor(ctx, source)
}

// UpdateCursor persists the update ID for the given source.
func (s *PostService) UpdateCursor(ctx context.Context, source string, cursor int64) error {
	return s.cursors.UpdateCursor(ctx, source, cursor)
}

// IsUserError reports whether err should be shown to a submitter as a
// rejected request rather than a server failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyBatch)
}
