package acquirer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackmichael/photoposts/internal/domain"
	"github.com/blackmichael/photoposts/internal/photostore"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the process-wide cap on in-flight photo fetches.
const DefaultConcurrency = 8

// Storage is the subset of photostore.Store the acquirer writes through.
type Storage interface {
	Exists(id string) (bool, error)
	Create(id string, data []byte) error
}

// Acquirer fetches photos from the provider and writes each one to storage
// exactly once. It implements domain.PhotoAcquirer.
type Acquirer struct {
	fetcher domain.MediaFetcher
	storage Storage
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// New creates an Acquirer that runs at most concurrency fetches at a time.
func New(fetcher domain.MediaFetcher, storage Storage, concurrency int, logger *slog.Logger) *Acquirer {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Acquirer{
		fetcher: fetcher,
		storage: storage,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger,
	}
}

// Acquire returns the storage identifier for ref. If a file with the derived
// name already exists the event is a duplicate and the existing identifier is
// returned without fetching. Every failure is an *domain.AcquisitionError.
func (a *Acquirer) Acquire(ctx context.Context, ref domain.PhotoRef, arrival time.Time) (string, error) {
	id := StorageID(ref, arrival)

	exists, err := a.storage.Exists(id)
	if err != nil {
		return "", &domain.AcquisitionError{FileID: ref.FileID, Err: fmt.Errorf("check storage: %w", err)}
	}
	if exists {
		a.logger.Info("photo already stored", "storage_id", id)
		return id, nil
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return "", &domain.AcquisitionError{FileID: ref.FileID, Err: err}
	}
	data, err := a.fetcher.FetchPhoto(ctx, ref.FileID)
	a.sem.Release(1)
	if err != nil {
		return "", &domain.AcquisitionError{FileID: ref.FileID, Err: fmt.Errorf("fetch: %w", err)}
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", &domain.AcquisitionError{FileID: ref.FileID, Err: fmt.Errorf("unexpected content type %s", mt.String())}
	}

	if err := a.storage.Create(id, data); err != nil {
		if errors.Is(err, photostore.ErrExists) {
			a.logger.Info("photo stored concurrently", "storage_id", id)
			return id, nil
		}
		return "", &domain.AcquisitionError{FileID: ref.FileID, Err: fmt.Errorf("write: %w", err)}
	}

	a.logger.Debug("photo acquired", "storage_id", id, "bytes", len(data), "content_type", mt.String())
	return id, nil
}

// StorageID derives the file name for a photo from its arrival time and the
// provider's unique content ID, falling back to the file ID.
func StorageID(ref domain.PhotoRef, arrival time.Time) string {
	key := ref.UniqueID
	if key == "" {
		key = ref.FileID
	}
	return fmt.Sprintf("%d_%s.jpg", arrival.Unix(), sanitize(key))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
