package updates

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackmichael/photoposts/internal/telegram"
)

const pollTimeout = 30 * time.Second

// UpdateFetcher is the long-polling half of the Bot API.
type UpdateFetcher interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Poller pulls updates with getUpdates and feeds them to a Dispatcher.
type Poller struct {
	fetcher    UpdateFetcher
	dispatcher *Dispatcher
	cursors    CursorStore
	logger     *slog.Logger

	pollTimeout time.Duration
	retryDelay  time.Duration
}

// NewPoller creates a new long-polling update source.
func NewPoller(fetcher UpdateFetcher, dispatcher *Dispatcher, cursors CursorStore, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:     fetcher,
		dispatcher:  dispatcher,
		cursors:     cursors,
		logger:      logger,
		pollTimeout: pollTimeout,
		retryDelay:  5 * time.Second,
	}
}

// Start polls until the context is cancelled, backing off after errors.
func (p *Poller) Start(ctx context.Context) error {
	cursor, err := p.cursors.GetCursor(ctx, cursorSource)
	if err != nil {
		p.logger.Warn("failed to load cursor, starting from pending updates", "error", err)
	}
	p.logger.Info("polling for updates", "cursor", cursor)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.fetcher.GetUpdates(ctx, cursor+1, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("get updates failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
				// backoff before polling again
			}
			continue
		}

		if len(updates) == 0 {
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID <= cursor {
				continue
			}
			if _, err := p.dispatcher.Handle(ctx, upd); err != nil {
				p.logger.Error("failed to handle update", "update_id", upd.UpdateID, "error", err)
			}
			cursor = upd.UpdateID
		}

		if err := p.cursors.UpdateCursor(ctx, cursorSource, cursor); err != nil {
			p.logger.Error("failed to save cursor", "error", err)
		}
	}
}
