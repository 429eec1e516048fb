package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/blackmichael/photoposts/internal/telegram"
	"github.com/gorilla/websocket"
)

const cursorSaveInterval = 5 * time.Second

// Subscriber connects to a websocket relay that forwards bot updates as JSON
// frames, one update per frame, and feeds them to a Dispatcher.
type Subscriber struct {
	url        string
	dispatcher *Dispatcher
	cursors    CursorStore
	logger     *slog.Logger

	retryDelay   time.Duration
	saveInterval time.Duration
}

// NewSubscriber creates a new relay subscriber.
func NewSubscriber(relayURL string, dispatcher *Dispatcher, cursors CursorStore, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:          relayURL,
		dispatcher:   dispatcher,
		cursors:      cursors,
		logger:       logger,
		retryDelay:   5 * time.Second,
		saveInterval: cursorSaveInterval,
	}
}

// Start connects to the relay and processes updates until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("relay connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.retryDelay):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	if cursor > 0 {
		q := u.Query()
		q.Set("offset", fmt.Sprintf("%d", cursor+1))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.cursors.GetCursor(ctx, cursorSource)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL, err := s.buildURL(cursor)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to update relay", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not observe ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to update relay")

	lastCursorSave := time.Now()
	latestCursor := cursor
	var updatesReceived, photosReceived int64
	lastStatsLog := time.Now()

	defer func() {
		if latestCursor > cursor {
			// Flush progress made since the last periodic save.
			if err := s.cursors.UpdateCursor(context.WithoutCancel(ctx), cursorSource, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		var upd telegram.Update
		if err := json.Unmarshal(message, &upd); err != nil {
			s.logger.Error("failed to parse update", "error", err)
			continue
		}

		if upd.UpdateID <= latestCursor {
			continue
		}
		updatesReceived++
		latestCursor = upd.UpdateID

		if isPhoto, err := s.dispatcher.Handle(ctx, upd); err != nil {
			s.logger.Error("failed to handle update", "update_id", upd.UpdateID, "error", err)
		} else if isPhoto {
			photosReceived++
		}

		// Log stats every 30 seconds
		if time.Since(lastStatsLog) >= 30*time.Second {
			s.logger.Info("relay stats",
				"updates_received", updatesReceived,
				"photos_received", photosReceived,
			)
			lastStatsLog = time.Now()
		}

		// Periodically save cursor
		if time.Since(lastCursorSave) >= s.saveInterval {
			if err := s.cursors.UpdateCursor(ctx, cursorSource, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
				cursor = latestCursor
			}
		}
	}
}
