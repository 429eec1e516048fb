package updates

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/blackmichael/photoposts/internal/domain"
	"github.com/blackmichael/photoposts/internal/telegram"
)

// cursorSource is the cursor name shared by every update source, so switching
// between polling and the relay resumes from the same place.
const cursorSource = "telegram"

// EventSink receives photo events in delivery order.
type EventSink interface {
	Accept(ev domain.PhotoEvent) error
}

// Replier sends text back to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string)
}

// CursorStore persists the last processed update ID.
type CursorStore interface {
	GetCursor(ctx context.Context, source string) (int64, error)
	UpdateCursor(ctx context.Context, source string, cursor int64) error
}

// Dispatcher turns bot updates into photo events and answers bot commands.
type Dispatcher struct {
	sink    EventSink
	replier Replier
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher. replier may be nil to disable replies.
func NewDispatcher(sink EventSink, replier Replier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		replier: replier,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle processes one update. It must be called in delivery order. It
// reports whether the update carried a photo.
func (d *Dispatcher) Handle(ctx context.Context, upd telegram.Update) (bool, error) {
	msg := upd.Message
	if msg == nil {
		return false, nil
	}

	if len(msg.Photo) > 0 {
		ev := d.photoEvent(msg)
		d.logger.Debug("photo received",
			"update_id", upd.UpdateID,
			"group_key", ev.GroupKey,
			"file_unique_id", ev.Ref.UniqueID,
			"caption_preview", truncate(ev.Caption, 50),
		)
		return true, d.sink.Accept(ev)
	}

	if strings.HasPrefix(msg.Text, "/start") {
		d.reply(ctx, msg.Chat.ID, telegram.MsgWelcome)
		return false, nil
	}

	d.reply(ctx, msg.Chat.ID, telegram.MsgNeedPhoto)
	return false, nil
}

func (d *Dispatcher) photoEvent(msg *telegram.Message) domain.PhotoEvent {
	// Sizes are listed smallest first; keep the full resolution.
	largest := msg.Photo[len(msg.Photo)-1]

	arrival := d.now()
	if msg.Date > 0 {
		arrival = time.Unix(msg.Date, 0)
	}

	return domain.PhotoEvent{
		GroupKey: msg.MediaGroupID,
		Ref: domain.PhotoRef{
			FileID:   largest.FileID,
			UniqueID: largest.FileUniqueID,
		},
		Caption:     msg.Caption,
		ArrivalTime: arrival,
		ChatID:      msg.Chat.ID,
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if d.replier != nil {
		d.replier.Reply(ctx, chatID, text)
	}
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
