package domain

import (
	"context"
	"time"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// InsertPost stores a new post atomically and returns its assigned ID.
	InsertPost(ctx context.Context, photoPaths []string, caption string) (int64, error)

	// ListPosts returns every post ordered by ID ascending.
	ListPosts(ctx context.Context) ([]Post, error)

	// DeletePost removes a post by ID. It reports whether a row existed.
	DeletePost(ctx context.Context, id int64) (bool, error)
}

// CursorRepository defines persistence operations for update source cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed update ID for the given source.
	// Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, source string) (int64, error)

	// UpdateCursor persists the update ID so we can resume on restart.
	UpdateCursor(ctx context.Context, source string, cursor int64) error
}

// MediaFetcher downloads raw photo bytes from the messaging provider.
type MediaFetcher interface {
	FetchPhoto(ctx context.Context, fileID string) ([]byte, error)
}

// PhotoAcquirer fetches a photo and writes it to stable storage, returning
// the storage identifier. Failures are returned as *AcquisitionError.
type PhotoAcquirer interface {
	Acquire(ctx context.Context, ref PhotoRef, arrival time.Time) (string, error)
}

// Notifier acknowledges outcomes back to the chat an event came from.
type Notifier interface {
	PostCreated(ctx context.Context, chatID int64, post *Post)
	PostFailed(ctx context.Context, chatID int64, err error)
}
