package domain

import "time"

// Post is an assembled caption plus an ordered list of stored photos. Posts
// are never updated in place; they are created once and may be deleted by ID.
type Post struct {
	// ID is assigned by the PostRepository on insert.
	ID int64

	// PhotoPaths are storage identifiers in the order the photos arrived.
	PhotoPaths []string

	// Caption may be empty.
	Caption string

	// CreatedAt is when the post was persisted.
	CreatedAt time.Time
}

// PhotoRef identifies a photo at the messaging provider.
type PhotoRef struct {
	// FileID is the handle used to download the photo bytes.
	FileID string

	// UniqueID is stable across re-deliveries of the same file. It may be
	// empty for batch submissions, in which case FileID names the file.
	UniqueID string
}

// PhotoEvent is one inbound photo notification from an update source.
type PhotoEvent struct {
	// GroupKey is the provider's media group ID. Empty means the photo is a
	// post on its own.
	GroupKey string

	Ref PhotoRef

	// Caption is usually only set on the first photo of a media group.
	Caption string

	ArrivalTime time.Time

	// ChatID is where acknowledgements for this event are sent. Zero
	// disables acknowledgements.
	ChatID int64
}

// IsGrouped reports whether the event belongs to a multi-photo submission.
func (e PhotoEvent) IsGrouped() bool {
	return e.GroupKey != ""
}
