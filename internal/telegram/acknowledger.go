package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blackmichael/photoposts/internal/domain"
)

// Reply texts sent back to the submitter.
const (
	MsgWelcome      = "Welcome! Send me photos with a caption to create a post."
	MsgNeedPhoto    = "Please send a photo together with a text caption."
	msgFetchFailed  = "Could not download the photo. Please try again."
	msgStoreFailed  = "Could not save the post to the database."
	msgUnknownError = "Something went wrong while processing the photo."
)

// Acknowledger replies to the originating chat when a post is saved or fails.
// It implements domain.Notifier.
type Acknowledger struct {
	client *Client
	logger *slog.Logger
}

// NewAcknowledger creates an Acknowledger that replies through client.
func NewAcknowledger(client *Client, logger *slog.Logger) *Acknowledger {
	return &Acknowledger{client: client, logger: logger}
}

// PostCreated confirms the saved post.
func (a *Acknowledger) PostCreated(ctx context.Context, chatID int64, post *domain.Post) {
	text := fmt.Sprintf("Saved post #%d with %d photo(s).", post.ID, len(post.PhotoPaths))
	a.reply(ctx, chatID, text)
}

// PostFailed tells the submitter why no post was created.
func (a *Acknowledger) PostFailed(ctx context.Context, chatID int64, err error) {
	a.reply(ctx, chatID, FailureText(err))
}

// Reply sends free-form text to a chat, logging instead of returning errors.
func (a *Acknowledger) Reply(ctx context.Context, chatID int64, text string) {
	a.reply(ctx, chatID, text)
}

func (a *Acknowledger) reply(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := a.client.SendMessage(ctx, chatID, text); err != nil {
		a.logger.Warn("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// FailureText maps a post failure to a user-facing message.
func FailureText(err error) string {
	var storeErr *domain.StoreWriteError
	switch {
	case errors.Is(err, domain.ErrEmptyBatch):
		return msgFetchFailed
	case errors.As(err, &storeErr):
		return msgStoreFailed
	default:
		return msgUnknownError
	}
}
